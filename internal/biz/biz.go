package biz

import (
	"github.com/DevRickLin/feishu-greeter/internal/biz/usecase"
)

// Usecases contains all usecases
type Usecases struct {
	Lifecycle *usecase.LifecycleUsecase
	Tracker   *usecase.DeliveryTracker
	Scheduler *usecase.DeletionScheduler
}
