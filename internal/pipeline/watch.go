package pipeline

import (
	"context"
	"strings"

	"prdforge/internal/services"
	"prdforge/internal/services/aliyun/filetrans"
)

// WatchTask polls an existing job and streams its progress, ending with
// complete{result} or error.
func WatchTask(ctx context.Context, transcriber FileTranscriber, taskID string, opts filetrans.PollOptions) <-chan Event {
	out := make(chan Event, 8)
	go func() {
		defer close(out)
		if strings.TrimSpace(taskID) == "" {
			send(ctx, out, errorEvent(services.Wrap(services.ErrValidation, "watch", "poll", "taskId required", nil)))
			return
		}
		progress := opts.OnProgress
		opts.OnProgress = func(status filetrans.Status) {
			if progress != nil {
				progress(status)
			}
			send(ctx, out, Event{Type: EventProgress, Status: string(status)})
		}
		task, err := transcriber.Poll(ctx, taskID, opts)
		if err != nil {
			if ctx.Err() == nil {
				send(ctx, out, errorEvent(err))
			}
			return
		}
		send(ctx, out, Event{Type: EventComplete, Text: task.Text, Task: &task})
	}()
	return out
}
