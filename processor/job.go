// seehuhn.de/go/annotate - persistent annotations for PDF documents
// Copyright (C) 2026  Jochen Voss <voss@seehuhn.de>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package processor

import (
	"context"
	"strings"
	"sync/atomic"

	"github.com/phuslu/log"
)

// Job is a running or finished processor job.
type Job struct {
	kind Kind

	ctx    context.Context
	stop   context.CancelFunc
	cancel atomic.Bool

	done chan struct{}
	err  *Error
	log  strings.Builder
}

// Kind returns the type of the job.
func (j *Job) Kind() Kind {
	return j.kind
}

// Cancel asks the job to stop.  Jobs check for cancellation between
// pages, so the job may continue for a short while.
func (j *Job) Cancel() {
	j.cancel.Store(true)
	j.stop()
}

// Done returns a channel which is closed when the job has ended.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Wait waits for the job to end and returns its error.  If ctx is
// cancelled first, the context's error is returned and the job keeps
// running.
func (j *Job) Wait(ctx context.Context) error {
	select {
	case <-j.done:
		return j.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err returns the error of a finished job, or nil if the job succeeded or
// is still running.
func (j *Job) Err() error {
	select {
	case <-j.done:
	default:
		return nil
	}
	if j.err == nil {
		return nil
	}
	return j.err
}

// Log returns the log messages of a finished job.
func (j *Job) Log() string {
	select {
	case <-j.done:
		return j.log.String()
	default:
		return ""
	}
}

// cancelled checks whether the job should stop.
func (j *Job) cancelled() *Error {
	if j.cancel.Load() || j.ctx.Err() != nil {
		return newError(Cancelled, context.Cause(j.ctx))
	}
	return nil
}

// jobWriter sends log entries to the job log, and to the processor's
// logger if the level is high enough.
type jobWriter struct {
	job   log.Writer
	main  log.Writer
	level log.Level
}

func (w *jobWriter) WriteEntry(e *log.Entry) (int, error) {
	n, err := w.job.WriteEntry(e)
	if w.main != nil && e.Level >= w.level {
		w.main.WriteEntry(e)
	}
	return n, err
}
