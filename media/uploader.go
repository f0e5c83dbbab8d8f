package media

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/image/draw"
)

const (
	maxWidth    = 800
	maxHeight   = 600
	jpegQuality = 90
)

// Uploader stores an uploaded image and returns its public URL. Handlers
// depend on this interface so the GCS client stays out of tests.
type Uploader interface {
	SaveImage(ctx context.Context, r io.Reader) (string, error)
}

// GCSUploader resizes images to fit 800x600, re-encodes them as JPEG and
// writes them publicly readable into a bucket under a random object name.
// Credentials come from the ambient service account
// (GOOGLE_APPLICATION_CREDENTIALS or the metadata server).
type GCSUploader struct {
	bucket     *storage.BucketHandle
	bucketName string
	log        *logrus.Logger
}

func NewGCSUploader(ctx context.Context, bucketName string, log *logrus.Logger) (*GCSUploader, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create storage client")
	}
	return &GCSUploader{
		bucket:     client.Bucket(bucketName),
		bucketName: bucketName,
		log:        log,
	}, nil
}

func (u *GCSUploader) SaveImage(ctx context.Context, r io.Reader) (string, error) {
	src, _, err := image.Decode(r)
	if err != nil {
		return "", errors.Wrap(err, "failed to decode image")
	}

	resized := resizeToFit(src, maxWidth, maxHeight)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, resized, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return "", errors.Wrap(err, "failed to encode image")
	}

	objectName := fmt.Sprintf("%s.jpg", uuid.New().String())
	w := u.bucket.Object(objectName).NewWriter(ctx)
	w.ContentType = "image/jpeg"
	w.CacheControl = "public, max-age=31536000"
	w.PredefinedACL = "publicRead"

	if _, err := w.Write(buf.Bytes()); err != nil {
		w.Close()
		return "", errors.Wrapf(err, "failed to upload %s", objectName)
	}
	if err := w.Close(); err != nil {
		return "", errors.Wrapf(err, "failed to upload %s", objectName)
	}

	u.log.Infof("uploaded image %s (%d bytes)", objectName, buf.Len())
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", u.bucketName, objectName), nil
}

// resizeToFit scales src down to fit within w x h, preserving aspect ratio.
// Images already small enough pass through untouched.
func resizeToFit(src image.Image, w, h int) image.Image {
	b := src.Bounds()
	if b.Dx() <= w && b.Dy() <= h {
		return src
	}

	scaleW := float64(w) / float64(b.Dx())
	scaleH := float64(h) / float64(b.Dy())
	scale := scaleW
	if scaleH < scale {
		scale = scaleH
	}

	dstW := int(float64(b.Dx()) * scale)
	dstH := int(float64(b.Dy()) * scale)
	dst := image.NewRGBA(image.Rect(0, 0, dstW, dstH))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	return dst
}
