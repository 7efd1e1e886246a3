package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/and161185/docdesk/internal/convert"
	"github.com/and161185/docdesk/internal/errs"
	"github.com/and161185/docdesk/internal/gateway"
	"github.com/and161185/docdesk/internal/model"
)

// Accepted upload media types.
const (
	TypePDF  = "application/pdf"
	TypeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	TypeText = "text/plain"
)

var acceptedTypes = map[string]struct{}{TypePDF: {}, TypeDOCX: {}, TypeText: {}}

var extTypes = map[string]string{".pdf": TypePDF, ".docx": TypeDOCX, ".txt": TypeText}

// Progress timing.
const (
	ProgressTick = 200 * time.Millisecond
	ProgressStep = 10
	ProgressCap  = 90
	HideAfter    = time.Second
)

// Accepted reports whether a declared media type may be uploaded. Parameters such as charset are ignored.
func Accepted(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	_, ok := acceptedTypes[strings.ToLower(mt)]
	return ok
}

// DetectType guesses a media type from the file extension.
func DetectType(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if ct, ok := extTypes[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// ErrSessionChanged marks upload tasks abandoned because the session changed mid-batch.
var ErrSessionChanged = errors.New("session changed before the upload finished")

// UploadFile is one file selected for upload.
type UploadFile struct {
	Name        string
	ContentType string
	Size        int64
	Open        func() (io.ReadCloser, error)
}

// EventKind classifies upload events.
type EventKind string

const (
	EventTask     EventKind = "task"     // progress or state change
	EventRejected EventKind = "rejected" // failed validation, never sent
	EventFailed   EventKind = "failed"   // backend or transport failure
	EventFinished EventKind = "finished" // batch over; reset the selection
)

// UploadEvent is delivered to upload observers.
type UploadEvent struct {
	Kind  EventKind
	Index int
	Task  model.UploadTask
}

// BatchResult summarizes one Upload call.
type BatchResult struct {
	Tasks    []model.UploadTask
	Uploaded []model.Document
	Stale    bool // the session changed mid-batch
}

// Uploader sequences per-file uploads and refreshes the collection afterwards.
type Uploader struct {
	api    Backend
	docs   *Documents
	sess   epochSource
	notify Notifier
	log    *zap.Logger
	clk    clock.Clock

	mu        sync.Mutex
	listeners []func(UploadEvent)
}

// NewUploader constructs an orchestrator.
func NewUploader(api Backend, docs *Documents, sess epochSource, n Notifier, log *zap.Logger, clk clock.Clock) *Uploader {
	if log == nil {
		log = zap.NewNop()
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Uploader{api: api, docs: docs, sess: sess, notify: notifierOrNop(n), log: log, clk: clk}
}

// Subscribe registers fn for upload events. fn may be called from timer goroutines.
func (u *Uploader) Subscribe(fn func(UploadEvent)) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.listeners = append(u.listeners, fn)
}

func (u *Uploader) emit(ev UploadEvent) {
	u.mu.Lock()
	ls := append(([]func(UploadEvent))(nil), u.listeners...)
	u.mu.Unlock()
	for _, fn := range ls {
		fn(ev)
	}
}

// batch holds task state shared with progress and hide timers.
type batch struct {
	mu    sync.Mutex
	tasks []model.UploadTask
}

func (b *batch) update(i int, fn func(*model.UploadTask)) model.UploadTask {
	b.mu.Lock()
	defer b.mu.Unlock()
	fn(&b.tasks[i])
	return b.tasks[i]
}

func (b *batch) snapshot() []model.UploadTask {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]model.UploadTask(nil), b.tasks...)
}

// Upload sends files one at a time with the session active at call time.
// Invalid files are reported and skipped; failures never stop the batch.
// The collection is reloaded afterwards unless the session changed.
func (u *Uploader) Upload(ctx context.Context, files []UploadFile) BatchResult {
	token, epoch := u.sess.Current()
	auth := &gateway.Auth{Token: token, Epoch: epoch}

	b := &batch{tasks: make([]model.UploadTask, len(files))}
	for i, f := range files {
		b.tasks[i] = model.UploadTask{Name: f.Name, ContentType: f.ContentType, Size: f.Size, State: model.UploadPending, Visible: true}
	}

	var res BatchResult
	for i, f := range files {
		if !Accepted(f.ContentType) {
			t := b.update(i, func(t *model.UploadTask) {
				t.State = model.UploadFailed
				t.Err = errs.Invalid(f.Name, "unsupported file type "+f.ContentType)
			})
			u.notify.Notify(Notification{Level: LevelError, Message: errs.UserMessage(t.Err)})
			u.emit(UploadEvent{Kind: EventRejected, Index: i, Task: t})
		}
	}

	for i, f := range files {
		if !Accepted(f.ContentType) {
			continue
		}
		if _, cur := u.sess.Current(); cur != epoch {
			res.Stale = true
			u.abandon(b, i)
			break
		}
		doc, err := u.uploadOne(ctx, b, i, f, auth)
		if _, cur := u.sess.Current(); cur != epoch {
			u.log.Info("upload response for previous session ignored", zap.String("file", f.Name))
			res.Stale = true
			u.abandon(b, i)
			break
		}
		if err != nil {
			t := b.update(i, func(t *model.UploadTask) {
				t.State = model.UploadFailed
				t.Err = err
			})
			Report(u.notify, f.Name, err)
			u.emit(UploadEvent{Kind: EventFailed, Index: i, Task: t})
			continue
		}
		t := b.update(i, func(t *model.UploadTask) {
			t.State = model.UploadDone
			t.Progress = 100
		})
		res.Uploaded = append(res.Uploaded, doc)
		u.emit(UploadEvent{Kind: EventTask, Index: i, Task: t})
		u.notify.Notify(Notification{Level: LevelInfo, Message: fmt.Sprintf("Uploaded %s", f.Name)})

		idx := i
		u.clk.AfterFunc(HideAfter, func() {
			t := b.update(idx, func(t *model.UploadTask) { t.Visible = false })
			u.emit(UploadEvent{Kind: EventTask, Index: idx, Task: t})
		})
	}

	if !res.Stale {
		if err := u.docs.LoadAll(ctx); err != nil {
			Report(u.notify, "refresh", err)
		}
	}
	u.emit(UploadEvent{Kind: EventFinished})
	res.Tasks = b.snapshot()
	return res
}

// abandon fails every non-terminal task from index from on. Responses are not
// consulted; the session that started them is gone.
func (u *Uploader) abandon(b *batch, from int) {
	for i := from; i < len(b.tasks); i++ {
		var changed bool
		t := b.update(i, func(t *model.UploadTask) {
			if t.State.Terminal() {
				return
			}
			t.State = model.UploadFailed
			t.Err = ErrSessionChanged
			changed = true
		})
		if changed {
			u.emit(UploadEvent{Kind: EventFailed, Index: i, Task: t})
		}
	}
}

func (u *Uploader) uploadOne(ctx context.Context, b *batch, i int, f UploadFile, auth *gateway.Auth) (model.Document, error) {
	t := b.update(i, func(t *model.UploadTask) {
		t.State = model.UploadInFlight
		t.Progress = 0
	})
	u.emit(UploadEvent{Kind: EventTask, Index: i, Task: t})

	stop := make(chan struct{})
	done := make(chan struct{})
	ticker := u.clk.Ticker(ProgressTick)
	go func() {
		defer close(done)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				t := b.update(i, func(t *model.UploadTask) {
					if t.Progress+ProgressStep <= ProgressCap {
						t.Progress += ProgressStep
					} else {
						t.Progress = ProgressCap
					}
				})
				u.emit(UploadEvent{Kind: EventTask, Index: i, Task: t})
			}
		}
	}()
	defer func() {
		close(stop)
		<-done
	}()

	rc, err := f.Open()
	if err != nil {
		return model.Document{}, &errs.ValidationError{Reason: err.Error()}
	}
	defer rc.Close()

	var wire convert.Document
	err = u.api.Do(ctx, gateway.Request{
		Method: http.MethodPost,
		Path:   "/documents/",
		File:   &gateway.File{Field: "file", Name: filepath.Base(f.Name), ContentType: f.ContentType, Body: rc},
		Auth:   auth,
	}, &wire)
	if err != nil {
		return model.Document{}, err
	}
	u.log.Info("document uploaded", zap.String("file", f.Name), zap.String("id", string(wire.DocID)))
	return convert.ToDocument(wire), nil
}
