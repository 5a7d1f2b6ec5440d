//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"cim/domain/event"
	"context"
	"net"
	"reflect"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
	Wait()
}

// Worker is one long running loop of the engine. It returns nil when its
// job is over; recovering from panics and errors is the supervisor's job.
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName returns the type name of w, pointers dereferenced, for logs.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// Dialer opens one reliable ordered byte stream to the server.
// The returned connection must support deadlines.
type Dialer interface {
	Dial(ctx context.Context) (net.Conn, error)
}

// HistorySink is the passive, append only consumer of every display event.
// A failing sink never affects the session.
type HistorySink interface {
	Record(ctx context.Context, e event.DisplayEvent) error
}
