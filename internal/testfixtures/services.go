package testfixtures

import (
	"io"
	"log/slog"
	"time"

	"github.com/example/facility-booking/internal/application"
)

// DiscardLogger returns a logger that drops every record.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ServiceFactory assists tests with constructing application services using deterministic
// identifiers and clocks.
type ServiceFactory struct {
	Clock       *Clock
	IDGenerator *IDGenerator
	Logger      *slog.Logger
}

// ServiceFactoryOption configures a ServiceFactory instance.
type ServiceFactoryOption func(*ServiceFactory)

// NewServiceFactory constructs a ServiceFactory with defaults.
func NewServiceFactory(opts ...ServiceFactoryOption) *ServiceFactory {
	factory := &ServiceFactory{}
	for _, opt := range opts {
		opt(factory)
	}
	if factory.Clock == nil {
		factory.Clock = NewClock(time.Time{})
	}
	if factory.IDGenerator == nil {
		factory.IDGenerator = NewIDGenerator("id")
	}
	if factory.Logger == nil {
		factory.Logger = DiscardLogger()
	}
	return factory
}

// WithClock overrides the clock used by the factory.
func WithClock(clock *Clock) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Clock = clock
	}
}

// WithIDGenerator overrides the identifier generator used by the factory.
func WithIDGenerator(generator *IDGenerator) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.IDGenerator = generator
	}
}

// WithLogger overrides the logger handed to services.
func WithLogger(logger *slog.Logger) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Logger = logger
	}
}

// ReservationServiceDeps captures dependencies for constructing a reservation service.
type ReservationServiceDeps struct {
	Reservations application.ReservationRepository
	Events       application.EventDispatcher
	Locker       application.Locker
	Policy       application.Policy
	IDGenerator  func() string
	Now          func() time.Time
}

// NewReservationService builds a reservation service using the supplied dependencies combined
// with the factory defaults.
func (f *ServiceFactory) NewReservationService(deps ReservationServiceDeps) *application.ReservationService {
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = f.IDGenerator.NextFunc()
	}
	now := deps.Now
	if now == nil {
		now = f.Clock.NowFunc()
	}
	return application.NewReservationServiceWithLogger(
		deps.Reservations,
		deps.Events,
		deps.Locker,
		deps.Policy,
		idGen,
		now,
		f.Logger,
	)
}

// NotificationRouterDeps captures dependencies for constructing a notification router.
type NotificationRouterDeps struct {
	Notifications application.NotificationRepository
	Staff         application.StaffDirectory
	Notifier      application.Notifier
	IDGenerator   func() string
	Now           func() time.Time
}

// NewNotificationRouter builds a notification router using the supplied dependencies.
func (f *ServiceFactory) NewNotificationRouter(deps NotificationRouterDeps) *application.NotificationRouter {
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = f.IDGenerator.NextFunc()
	}
	now := deps.Now
	if now == nil {
		now = f.Clock.NowFunc()
	}
	return application.NewNotificationRouterWithLogger(
		deps.Notifications,
		deps.Staff,
		deps.Notifier,
		idGen,
		now,
		f.Logger,
	)
}

// NewStaffService builds a staff service over the given repository.
func (f *ServiceFactory) NewStaffService(staff application.StaffRepository) *application.StaffService {
	return application.NewStaffServiceWithLogger(staff, f.Clock.NowFunc(), f.Logger)
}

// Stack is a fully wired in-memory reservation core.
type Stack struct {
	Factory       *ServiceFactory
	Reservations  *ReservationStore
	Notifications *NotificationStore
	Staff         *StaffStore
	Notifier      *RecordingNotifier
	Events        *EventRecorder
	Router        *application.NotificationRouter
	Service       *application.ReservationService
	StaffService  *application.StaffService
}

// NewStack wires the reservation service to the notification router through an EventRecorder.
// Staff members staff-3 (floor 3) and staff-4 (floor 4) are pre-assigned.
func (f *ServiceFactory) NewStack(policy application.Policy) *Stack {
	stack := &Stack{
		Factory:       f,
		Reservations:  NewReservationStore(),
		Notifications: NewNotificationStore(),
		Staff: NewStaffStore(
			application.StaffMember{ID: FloorStaff.UserID, Floor: FloorStaff.Floor},
			application.StaffMember{ID: OtherStaff.UserID, Floor: OtherStaff.Floor},
		),
		Notifier: &RecordingNotifier{},
	}
	stack.Router = f.NewNotificationRouter(NotificationRouterDeps{
		Notifications: stack.Notifications,
		Staff:         stack.Staff,
		Notifier:      stack.Notifier,
	})
	stack.Events = &EventRecorder{Next: stack.Router}
	stack.Service = f.NewReservationService(ReservationServiceDeps{
		Reservations: stack.Reservations,
		Events:       stack.Events,
		Locker:       application.NewKeyedMutex(),
		Policy:       policy,
	})
	stack.StaffService = f.NewStaffService(stack.Staff)
	return stack
}
