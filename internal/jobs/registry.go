package jobs

// Handler runs one claimed job to completion. Implementations terminate the
// job through the Context (Complete or Fail); returning without either marks
// the job failed.
type Handler interface {
	Run(jc *Context)
}

type HandlerFunc func(jc *Context)

func (f HandlerFunc) Run(jc *Context) { f(jc) }

type Registry struct {
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: map[string]Handler{}}
}

func (r *Registry) Register(jobType string, h Handler) {
	r.handlers[jobType] = h
}

func (r *Registry) Get(jobType string) (Handler, bool) {
	h, ok := r.handlers[jobType]
	return h, ok
}
