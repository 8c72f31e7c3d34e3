package worker

import (
	"context"

	"github.com/nexus-chat/moderation-service/internal/service"
)

// StartNotificationWorker registers notification handlers and starts the
// delivery loop. The returned channel closes once the loop has stopped.
func StartNotificationWorker(ctx context.Context, notificationService *service.NotificationService) <-chan struct{} {
	done := make(chan struct{})
	if notificationService == nil || !notificationService.Enabled() {
		close(done)
		return done
	}
	notificationService.RegisterHandlers()
	go func() {
		defer close(done)
		notificationService.Run(ctx)
	}()
	return done
}
