package admin

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fyrsmithlabs/aicacia/internal/api"
	"github.com/fyrsmithlabs/aicacia/internal/logging"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// MaxFilesPerUpload bounds a single upload.
const MaxFilesPerUpload = 5

// LoadFailedMessage is shown when the documents or quota cannot be read.
const LoadFailedMessage = "Failed to load user data"

// Upload validation failures. Each matches api.ErrValidationRejected and
// blocks the upload before any request is made.
var (
	ErrTooManyFiles error = api.NewValidationError("Maximum 5 files allowed per upload")
	ErrNotPDF       error = api.NewValidationError("Only PDF files are allowed")
	ErrNoFiles      error = api.NewValidationError("Please select files to upload")
	ErrQuotaFull    error = api.NewValidationError("Document quota reached")
	ErrNoUser       error = api.NewValidationError("Select a user to manage their documents")
)

// File is a local file selected for upload.
type File struct {
	Name string `validate:"required,pdfname"`
	Size int64
	Open func() (io.ReadCloser, error) `validate:"-"`
}

// FileFromPath describes the file at path.
func FileFromPath(path string) (File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return File{}, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if info.IsDir() {
		return File{}, fmt.Errorf("%s is a directory", path)
	}
	return File{
		Name: filepath.Base(path),
		Size: info.Size(),
		Open: func() (io.ReadCloser, error) { return os.Open(path) },
	}, nil
}

type selection struct {
	Files []File `validate:"min=1,max=5,dive"`
}

// MessageKind tells a success notice from an error.
type MessageKind int

const (
	MessageSuccess MessageKind = iota
	MessageError
)

// Message is the notice shown above the document list.
type Message struct {
	Kind MessageKind
	Text string
}

// DocumentsView is a copy of the document management state.
type DocumentsView struct {
	Email     string // empty when no user is selected
	Documents []api.Document
	Quota     *api.DocumentQuota
	Selected  []File
	Loading   bool
	Uploading bool
	Message   *Message
}

// CanUpload reports whether the upload action is enabled.
func (v DocumentsView) CanUpload() bool {
	if v.Email == "" || len(v.Selected) == 0 || v.Uploading {
		return false
	}
	return v.Quota == nil || v.Quota.RemainingQuota != 0
}

// Documents manages one user's uploaded documents.
type Documents struct {
	backend  Backend
	logger   *logging.Logger
	validate *validator.Validate

	mu        sync.Mutex
	email     string
	docs      []api.Document
	quota     *api.DocumentQuota
	selected  []File
	loading   bool
	uploading bool
	message   *Message
	// gen changes whenever the selected user changes so that results for
	// an earlier selection are dropped.
	gen uint64
}

// NewDocuments returns document management with no user selected.
func NewDocuments(backend Backend, opts ...Option) (*Documents, error) {
	o := buildOptions(opts)
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.RegisterValidation("pdfname", func(fl validator.FieldLevel) bool {
		return strings.HasSuffix(strings.ToLower(fl.Field().String()), ".pdf")
	}); err != nil {
		return nil, fmt.Errorf("failed to register pdf validation: %w", err)
	}
	return &Documents{backend: backend, logger: o.logger, validate: v}, nil
}

// View returns a copy of the current state.
func (d *Documents) View() DocumentsView {
	d.mu.Lock()
	defer d.mu.Unlock()
	v := DocumentsView{
		Email:     d.email,
		Documents: append([]api.Document(nil), d.docs...),
		Selected:  append([]File(nil), d.selected...),
		Loading:   d.loading,
		Uploading: d.uploading,
	}
	if d.quota != nil {
		q := *d.quota
		v.Quota = &q
	}
	if d.message != nil {
		m := *d.message
		v.Message = &m
	}
	return v
}

func (d *Documents) setMessage(kind MessageKind, text string) {
	d.mu.Lock()
	d.message = &Message{Kind: kind, Text: text}
	d.mu.Unlock()
}

// setMessageFor shows a notice only while the selection gen is current.
func (d *Documents) setMessageFor(gen uint64, kind MessageKind, text string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.gen != gen {
		return false
	}
	d.message = &Message{Kind: kind, Text: text}
	return true
}

// SelectUser switches to email's documents and loads them. An empty email
// clears the view.
func (d *Documents) SelectUser(ctx context.Context, email string) error {
	d.mu.Lock()
	d.clearLocked()
	d.email = email
	d.mu.Unlock()

	if email == "" {
		return nil
	}
	return d.Load(ctx)
}

// Reset forgets the selected user and everything loaded for them.
func (d *Documents) Reset() {
	d.mu.Lock()
	d.clearLocked()
	d.mu.Unlock()
}

func (d *Documents) clearLocked() {
	d.email = ""
	d.docs = nil
	d.quota = nil
	d.selected = nil
	d.message = nil
	d.loading = false
	d.uploading = false
	d.gen++
}

// Load fetches the document list and quota together. On failure the
// previous values stay and an error notice is shown.
func (d *Documents) Load(ctx context.Context) error {
	d.mu.Lock()
	email, gen := d.email, d.gen
	if email == "" {
		d.mu.Unlock()
		return ErrNoUser
	}
	d.loading = true
	d.mu.Unlock()

	docs, quota, err := d.fetch(ctx, email)

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.gen != gen {
		return nil
	}
	d.loading = false
	if err != nil {
		d.message = &Message{Kind: MessageError, Text: LoadFailedMessage}
		d.logger.Warn(ctx, "failed to load user data", zap.String("email", email), zap.Error(err))
		return err
	}
	d.docs = docs
	d.quota = quota
	return nil
}

func (d *Documents) fetch(ctx context.Context, email string) ([]api.Document, *api.DocumentQuota, error) {
	var (
		docs  []api.Document
		quota *api.DocumentQuota
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		docs, err = d.backend.ListDocuments(gctx, email)
		return err
	})
	g.Go(func() error {
		var err error
		quota, err = d.backend.DocumentQuota(gctx, email)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return docs, quota, nil
}

// Select validates files and makes them the pending upload. A rejected
// selection leaves the previous one in place and shows the reason.
func (d *Documents) Select(files []File) error {
	if err := d.check(files); err != nil {
		d.setMessage(MessageError, err.Error())
		return err
	}
	d.mu.Lock()
	d.selected = append([]File(nil), files...)
	d.message = nil
	d.mu.Unlock()
	return nil
}

// check maps validator failures onto the upload errors. The file count is
// reported before file types.
func (d *Documents) check(files []File) error {
	err := d.validate.Struct(selection{Files: files})
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("failed to validate selection: %w", err)
	}
	reject := ErrNotPDF
	for _, fe := range verrs {
		switch fe.Tag() {
		case "max":
			return ErrTooManyFiles
		case "min":
			reject = ErrNoFiles
		}
	}
	return reject
}

// Upload sends the selected files. On success the quota counts returned
// by the backend are applied, then the list and quota are re-read. When
// another user was selected meanwhile the view is left alone.
func (d *Documents) Upload(ctx context.Context) (*api.UploadResult, error) {
	d.mu.Lock()
	email, gen := d.email, d.gen
	files := append([]File(nil), d.selected...)
	full := d.quota != nil && d.quota.RemainingQuota == 0
	d.mu.Unlock()

	switch {
	case email == "":
		return nil, ErrNoUser
	case len(files) == 0:
		return nil, ErrNoFiles
	case full:
		return nil, ErrQuotaFull
	}
	if err := d.check(files); err != nil {
		return nil, err
	}

	uploads, closeAll, err := openAll(files)
	if err != nil {
		d.setMessage(MessageError, err.Error())
		return nil, err
	}

	d.mu.Lock()
	d.uploading = true
	d.message = nil
	d.mu.Unlock()

	result, err := d.backend.UploadDocuments(ctx, email, uploads)
	closeAll()

	d.mu.Lock()
	current := d.gen == gen
	if current {
		d.uploading = false
	}
	if err != nil {
		if current {
			d.message = &Message{Kind: MessageError, Text: err.Error()}
		}
		d.mu.Unlock()
		d.logger.Warn(ctx, "upload failed", zap.String("email", email), zap.Int("files", len(files)), zap.Error(err))
		return nil, err
	}
	if !current {
		d.mu.Unlock()
		d.logger.Info(ctx, "documents uploaded for a user no longer selected", zap.String("email", email), zap.Int("uploaded", result.TotalUploaded))
		return result, nil
	}
	if d.quota != nil {
		d.quota.CurrentDocumentCount = result.UserDocumentCount
		d.quota.RemainingQuota = result.RemainingQuota
	}
	d.selected = nil
	d.message = &Message{
		Kind: MessageSuccess,
		Text: fmt.Sprintf("Successfully uploaded %d document(s)", result.TotalUploaded),
	}
	d.mu.Unlock()

	d.logger.Info(ctx, "documents uploaded", zap.String("email", email), zap.Int("uploaded", result.TotalUploaded))

	docs, quota, err := d.fetch(ctx, email)
	if err != nil {
		d.logger.Warn(ctx, "failed to refresh documents", zap.String("email", email), zap.Error(err))
		return result, nil
	}
	d.mu.Lock()
	if d.gen == gen {
		d.docs = docs
		d.quota = quota
	}
	d.mu.Unlock()
	return result, nil
}

func openAll(files []File) ([]api.UploadFile, func(), error) {
	var closers []io.Closer
	closeAll := func() {
		for _, c := range closers {
			c.Close()
		}
	}
	uploads := make([]api.UploadFile, 0, len(files))
	for _, f := range files {
		if f.Open == nil {
			closeAll()
			return nil, nil, fmt.Errorf("%s cannot be read", f.Name)
		}
		rc, err := f.Open()
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("failed to open %s: %w", f.Name, err)
		}
		closers = append(closers, rc)
		uploads = append(uploads, api.UploadFile{Name: f.Name, Size: f.Size, Content: rc})
	}
	return uploads, closeAll, nil
}

// DeletePrompt is the question asked before doc is deleted.
func DeletePrompt(doc api.Document) string {
	return fmt.Sprintf("Are you sure you want to delete %q?", doc.Filename)
}

// Delete removes doc once confirm agrees, then reloads the list and
// quota. It reports whether the document was deleted.
func (d *Documents) Delete(ctx context.Context, doc api.Document, confirm Confirmer) (bool, error) {
	d.mu.Lock()
	email, gen := d.email, d.gen
	d.mu.Unlock()
	if email == "" {
		return false, ErrNoUser
	}
	if confirm != nil && !confirm(DeletePrompt(doc)) {
		return false, nil
	}

	if err := d.backend.DeleteDocument(ctx, email, doc.DocID); err != nil {
		d.setMessageFor(gen, MessageError, err.Error())
		d.logger.Warn(ctx, "delete failed", zap.String("email", email), zap.String("doc_id", doc.DocID), zap.Error(err))
		return false, err
	}
	if !d.setMessageFor(gen, MessageSuccess, fmt.Sprintf("Deleted %q", doc.Filename)) {
		return true, nil
	}
	d.logger.Info(ctx, "document deleted", zap.String("email", email), zap.String("doc_id", doc.DocID))

	// A failed reload shows its own notice; the delete itself succeeded.
	_ = d.Load(ctx)
	return true, nil
}
