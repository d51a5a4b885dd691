package reporter

// CompositeReporter forwards every event to each of its reporters in order.
type CompositeReporter struct {
	reporters []Reporter
}

// NewCompositeReporter creates a composite reporter. Nil reporters are skipped.
func NewCompositeReporter(reporters ...Reporter) *CompositeReporter {
	c := &CompositeReporter{}
	for _, r := range reporters {
		if r != nil {
			c.reporters = append(c.reporters, r)
		}
	}
	return c
}

func (c *CompositeReporter) each(fn func(Reporter)) {
	for _, r := range c.reporters {
		fn(r)
	}
}

func (c *CompositeReporter) Hardware(s HardwareSummary) {
	c.each(func(r Reporter) { r.Hardware(s) })
}

func (c *CompositeReporter) ModelLoaded(s ModelSummary) {
	c.each(func(r Reporter) { r.ModelLoaded(s) })
}

func (c *CompositeReporter) DownloadProgress(p DownloadProgress) {
	c.each(func(r Reporter) { r.DownloadProgress(p) })
}

func (c *CompositeReporter) Initialization(s InitializationSummary) {
	c.each(func(r Reporter) { r.Initialization(s) })
}

func (c *CompositeReporter) StageProgress(u StageProgress) {
	c.each(func(r Reporter) { r.StageProgress(u) })
}

func (c *CompositeReporter) ExtractionStarted(totalClips int) {
	c.each(func(r Reporter) { r.ExtractionStarted(totalClips) })
}

func (c *CompositeReporter) ClipProgress(p ClipProgress) {
	c.each(func(r Reporter) { r.ClipProgress(p) })
}

func (c *CompositeReporter) ExtractionComplete(s ExtractionOutcome) {
	c.each(func(r Reporter) { r.ExtractionComplete(s) })
}

func (c *CompositeReporter) Warning(message string) {
	c.each(func(r Reporter) { r.Warning(message) })
}

func (c *CompositeReporter) Error(err ReporterError) {
	c.each(func(r Reporter) { r.Error(err) })
}

func (c *CompositeReporter) OperationComplete(message string) {
	c.each(func(r Reporter) { r.OperationComplete(message) })
}

func (c *CompositeReporter) BatchStarted(info BatchStartInfo) {
	c.each(func(r Reporter) { r.BatchStarted(info) })
}

func (c *CompositeReporter) FileProgress(ctx FileProgressContext) {
	c.each(func(r Reporter) { r.FileProgress(ctx) })
}

func (c *CompositeReporter) BatchComplete(s BatchSummary) {
	c.each(func(r Reporter) { r.BatchComplete(s) })
}

func (c *CompositeReporter) Verbose(message string) {
	c.each(func(r Reporter) { r.Verbose(message) })
}
