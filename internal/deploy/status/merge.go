package status

// Merge returns next with every status that already reached a terminal state
// in prev carried over, so a late or out-of-order update can never move an
// entity out of completed or failed. Entities are matched by step name.
func Merge(prev, next DeployData) DeployData {
	out := next
	out.Status = keep(prev.Status, next.Status)

	if len(next.Endpoints) > 0 {
		known := make(map[string]Status, len(prev.Endpoints))
		for _, e := range prev.Endpoints {
			known[e.StepName] = e.Status
		}
		out.Endpoints = make([]Endpoint, len(next.Endpoints))
		for i, e := range next.Endpoints {
			e.Status = keep(known[e.StepName], e.Status)
			out.Endpoints[i] = e
		}
	}

	if len(next.Events) > 0 {
		known := make(map[string]Status, len(prev.Events))
		for _, e := range prev.Events {
			known[e.StepName] = e.Status
		}
		out.Events = make([]EventListener, len(next.Events))
		for i, e := range next.Events {
			e.Status = keep(known[e.StepName], e.Status)
			out.Events[i] = e
		}
	}

	if len(next.Cron) > 0 {
		known := make(map[string]Status, len(prev.Cron))
		for _, c := range prev.Cron {
			known[c.StepName] = c.Status
		}
		out.Cron = make([]CronJob, len(next.Cron))
		for i, c := range next.Cron {
			c.Status = keep(known[c.StepName], c.Status)
			out.Cron[i] = c
		}
	}

	if len(out.Outputs) == 0 && len(prev.Outputs) > 0 {
		out.Outputs = prev.Outputs
	}
	return out
}

func keep(prev, next Status) Status {
	if prev.IsTerminal() {
		return prev
	}
	return next
}
