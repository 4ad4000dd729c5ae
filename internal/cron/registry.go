package cron

import (
	"context"
	"fmt"
	"strings"
)

// Job is a unit of scheduled work. Name doubles as the metric label and the value
// accepted by the worker's -jobs flag, so it must be unique within a registry.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Registry is an ordered set of uniquely named jobs.
type Registry struct {
	jobs   []Job
	byName map[string]Job
}

// NewRegistry keeps jobs in the given order, skipping nil entries.
func NewRegistry(jobs ...Job) (*Registry, error) {
	r := &Registry{byName: make(map[string]Job, len(jobs))}
	for _, job := range jobs {
		if job == nil {
			continue
		}
		name := job.Name()
		if strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("cron job %T has no name", job)
		}
		if _, dup := r.byName[name]; dup {
			return nil, fmt.Errorf("cron job %q registered twice", name)
		}
		r.byName[name] = job
		r.jobs = append(r.jobs, job)
	}
	return r, nil
}

// Jobs returns a copy of the jobs in registration order.
func (r *Registry) Jobs() []Job {
	if r == nil {
		return nil
	}
	return append([]Job(nil), r.jobs...)
}

// Names lists job names in registration order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.Jobs()))
	for _, job := range r.Jobs() {
		names = append(names, job.Name())
	}
	return names
}

// Lookup finds a job by name.
func (r *Registry) Lookup(name string) (Job, bool) {
	if r == nil {
		return nil, false
	}
	job, ok := r.byName[name]
	return job, ok
}

// Select narrows the registry to the named jobs, preserving registration order.
// An empty selection keeps every job.
func (r *Registry) Select(names ...string) (*Registry, error) {
	if len(names) == 0 {
		return r, nil
	}
	wanted := make(map[string]bool, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, ok := r.Lookup(name); !ok {
			return nil, fmt.Errorf("unknown cron job %q (known: %s)", name, strings.Join(r.Names(), ", "))
		}
		wanted[name] = true
	}
	var selected []Job
	for _, job := range r.jobs {
		if wanted[job.Name()] {
			selected = append(selected, job)
		}
	}
	return NewRegistry(selected...)
}
