// Package status models the state of a remote deployment as delivered by the
// status feed.
package status

// Status is the state of a deployment or of one of its entities.
type Status string

const (
	Pending   Status = "pending"
	Progress  Status = "progress"
	Completed Status = "completed"
	Failed    Status = "failed"
)

// IsTerminal reports whether no further transition can follow s.
func (s Status) IsTerminal() bool {
	return s == Completed || s == Failed
}

// Endpoint is the rollout state of one api route.
type Endpoint struct {
	Method   string   `json:"method"`
	Path     string   `json:"path"`
	StepName string   `json:"stepName"`
	Emits    []string `json:"emits"`
	Status   Status   `json:"status"`
}

// EventListener is the rollout state of one event subscriber.
type EventListener struct {
	Topics   []string `json:"topics"`
	Queue    string   `json:"queue"`
	StepName string   `json:"stepName"`
	Status   Status   `json:"status"`
}

// CronJob is the rollout state of one scheduled step.
type CronJob struct {
	Cron     string   `json:"cron"`
	StepName string   `json:"stepName"`
	Emits    []string `json:"emits"`
	Status   Status   `json:"status"`
}

// DeployData is the deployment object published on the status feed.
type DeployData struct {
	ID        string            `json:"id"`
	Status    Status            `json:"status"`
	Endpoints []Endpoint        `json:"endpoints"`
	Events    []EventListener   `json:"events"`
	Cron      []CronJob         `json:"cron"`
	Outputs   map[string]string `json:"outputs,omitempty"`
	Error     string            `json:"error,omitempty"`
}

// Fold derives the aggregate status of a category: Failed if any member
// failed, Completed if every member completed, Progress otherwise. An empty
// category is Completed.
func Fold(statuses ...Status) Status {
	agg := Completed
	for _, s := range statuses {
		switch {
		case s == Failed:
			return Failed
		case s != Completed:
			agg = Progress
		}
	}
	return agg
}

// EndpointsStatus folds the endpoint statuses of d.
func (d DeployData) EndpointsStatus() Status {
	all := make([]Status, len(d.Endpoints))
	for i, e := range d.Endpoints {
		all[i] = e.Status
	}
	return Fold(all...)
}

// EventsStatus folds the event listener statuses of d.
func (d DeployData) EventsStatus() Status {
	all := make([]Status, len(d.Events))
	for i, e := range d.Events {
		all[i] = e.Status
	}
	return Fold(all...)
}

// CronStatus folds the cron job statuses of d.
func (d DeployData) CronStatus() Status {
	all := make([]Status, len(d.Cron))
	for i, c := range d.Cron {
		all[i] = c.Status
	}
	return Fold(all...)
}
