// Package resume stores résumé PDFs in S3 under a per-user prefix and
// extracts their text for prompt personalization.
package resume

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/aws/aws-sdk-go/service/s3/s3manager/s3manageriface"
	"github.com/google/uuid"
	"github.com/ledongthuc/pdf"
)

// MaxUploadBytes caps a single résumé upload.
const MaxUploadBytes = 5 << 20

// maxDownloadBytes caps what Text reads back from storage.
const maxDownloadBytes = 10 << 20

var (
	// ErrNotFound is returned when no object exists at the requested key.
	ErrNotFound = errors.New("resume: not found")

	// ErrInvalidName is returned for names that are not a plain .pdf file name.
	ErrInvalidName = errors.New("resume: file name must be a plain .pdf name")
)

// File is one stored résumé.
type File struct {
	Name       string    `json:"name"`
	Path       string    `json:"path"`
	Size       int64     `json:"size"`
	UploadedAt time.Time `json:"uploadedAt"`
}

// Store reads and writes résumé objects in one bucket.
type Store struct {
	client   s3iface.S3API
	uploader s3manageriface.UploaderAPI
	bucket   string
}

// New returns a Store over explicit S3 clients.
func New(client s3iface.S3API, uploader s3manageriface.UploaderAPI, bucket string) *Store {
	return &Store{client: client, uploader: uploader, bucket: bucket}
}

// NewFromSession builds the S3 client and uploader from sess.
func NewFromSession(sess *session.Session, bucket string) *Store {
	return New(s3.New(sess), s3manager.NewUploader(sess), bucket)
}

// Path returns the object key for a user's file.
func Path(userID uuid.UUID, name string) string {
	return userID.String() + "/" + name
}

// OwnedBy reports whether key lives under userID's prefix.
func OwnedBy(userID uuid.UUID, key string) bool {
	return strings.HasPrefix(key, userID.String()+"/")
}

// CleanName validates an uploaded file name and strips directory parts.
func CleanName(name string) (string, error) {
	name = strings.TrimSpace(path.Base(strings.ReplaceAll(name, "\\", "/")))
	if name == "" || name == "." || name == "/" || strings.HasPrefix(name, ".") {
		return "", ErrInvalidName
	}
	if !strings.EqualFold(path.Ext(name), ".pdf") {
		return "", ErrInvalidName
	}
	return name, nil
}

// List returns the user's stored files, newest first.
func (s *Store) List(ctx context.Context, userID uuid.UUID) ([]File, error) {
	prefix := userID.String() + "/"
	var files []File

	err := s.client.ListObjectsV2PagesWithContext(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	}, func(page *s3.ListObjectsV2Output, _ bool) bool {
		for _, obj := range page.Contents {
			key := aws.StringValue(obj.Key)
			files = append(files, File{
				Name:       strings.TrimPrefix(key, prefix),
				Path:       key,
				Size:       aws.Int64Value(obj.Size),
				UploadedAt: aws.TimeValue(obj.LastModified),
			})
		}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("resume: list %s: %w", prefix, err)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].UploadedAt.After(files[j].UploadedAt) })
	return files, nil
}

// Upload writes body as the user's file name and returns its path.
func (s *Store) Upload(ctx context.Context, userID uuid.UUID, name string, body io.Reader) (string, error) {
	name, err := CleanName(name)
	if err != nil {
		return "", err
	}
	key := Path(userID, name)

	_, err = s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String("application/pdf"),
	})
	if err != nil {
		return "", fmt.Errorf("resume: upload %s: %w", key, err)
	}
	return key, nil
}

// Exists reports whether the object at key is present.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if isNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("resume: head %s: %w", key, err)
	}
	return true, nil
}

// Delete removes the user's file name.
func (s *Store) Delete(ctx context.Context, userID uuid.UUID, name string) (string, error) {
	name, err := CleanName(name)
	if err != nil {
		return "", err
	}
	key := Path(userID, name)

	exists, err := s.Exists(ctx, key)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", ErrNotFound
	}

	if _, err := s.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}); err != nil {
		return "", fmt.Errorf("resume: delete %s: %w", key, err)
	}
	return key, nil
}

// Download returns the raw bytes stored at key.
func (s *Store) Download(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if isNotFound(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("resume: get %s: %w", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(io.LimitReader(out.Body, maxDownloadBytes))
	if err != nil {
		return nil, fmt.Errorf("resume: read %s: %w", key, err)
	}
	return data, nil
}

// Text downloads the PDF at key and returns its plain text.
func (s *Store) Text(ctx context.Context, key string) (string, error) {
	data, err := s.Download(ctx, key)
	if err != nil {
		return "", err
	}
	return ExtractText(data)
}

// ExtractText returns the plain text of a PDF document.
func ExtractText(data []byte) (text string, err error) {
	// The parser panics on some malformed inputs.
	defer func() {
		if p := recover(); p != nil {
			text, err = "", fmt.Errorf("resume: malformed pdf: %v", p)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("resume: open pdf: %w", err)
	}
	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("resume: extract text: %w", err)
	}
	b, err := io.ReadAll(plain)
	if err != nil {
		return "", fmt.Errorf("resume: read text: %w", err)
	}
	return strings.Join(strings.Fields(string(b)), " "), nil
}

func isNotFound(err error) bool {
	var aerr awserr.Error
	if !errors.As(err, &aerr) {
		return false
	}
	switch aerr.Code() {
	case s3.ErrCodeNoSuchKey, "NotFound":
		return true
	}
	return false
}
