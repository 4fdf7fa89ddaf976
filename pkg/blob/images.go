package blob

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/weppos/publicsuffix-go/publicsuffix"

	"github.com/klimkalender/klimkalender-cms/pkg/whttp"
)

const ImageBucket = "event-images"

// ImageUploader copies remote images into a bucket and hands out the object
// key as the stable reference.
type ImageUploader struct {
	Bucket     Bucket
	BucketName string
	Client     *whttp.Client
}

func NewImageUploader(b Bucket, client *whttp.Client) *ImageUploader {
	if client == nil {
		client = whttp.NewClient(whttp.Options{})
	}
	return &ImageUploader{Bucket: b, BucketName: ImageBucket, Client: client}
}

// Upload fetches imageURL and stores it. The returned ref looks like
// "grip.nl/1b2c3d4e-games.jpg".
func (u *ImageUploader) Upload(ctx context.Context, imageURL string) (string, error) {
	res, err := u.Client.SendHTTPRequest(ctx, &whttp.WHTTPReq{URL: imageURL, Raw: true})
	if err != nil {
		return "", fmt.Errorf("fetch image %s: %w", imageURL, err)
	}
	if len(res.Body) == 0 {
		return "", fmt.Errorf("fetch image %s: empty body", imageURL)
	}
	ref := ImageRef(imageURL, uuid.NewString())
	contentType := res.ContentType
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = ContentType(ref)
	}
	if err := u.Bucket.Put(ctx, u.BucketName, ref, res.Body, contentType); err != nil {
		return "", fmt.Errorf("store image %s: %w", ref, err)
	}
	return ref, nil
}

// Delete removes a previously uploaded image. Empty refs are ignored.
func (u *ImageUploader) Delete(ctx context.Context, ref string) error {
	if ref == "" {
		return nil
	}
	return u.Bucket.Delete(ctx, u.BucketName, ref)
}

var unsafeName = regexp.MustCompile(`[\s%]+`)

// ImageRef builds the object key for imageURL: the registrable domain of the
// source, then a short unique prefix and the sanitized file name.
func ImageRef(imageURL, id string) string {
	host, name := "unknown", "image"
	if u, err := url.Parse(imageURL); err == nil {
		if h := u.Hostname(); h != "" {
			host = h
			if d, err := publicsuffix.Domain(h); err == nil && net.ParseIP(h) == nil {
				host = d
			}
		}
		if base := path.Base(u.Path); base != "." && base != "/" {
			name = base
		}
	}
	name = unsafeName.ReplaceAllString(name, "-")
	if len(id) > 8 {
		id = id[:8]
	}
	return host + "/" + id + "-" + name
}

// ContentType guesses the mime type from the file extension.
func ContentType(name string) string {
	switch strings.ToLower(path.Ext(name)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	case ".svg":
		return "image/svg+xml"
	default:
		return "application/octet-stream"
	}
}
