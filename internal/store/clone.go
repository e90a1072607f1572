package store

func CloneRequest(req ScrapeRequest) ScrapeRequest {
	cloned := req
	cloned.Domain = clonePtr(req.Domain)
	cloned.FinalResult = clonePtr(req.FinalResult)
	cloned.Success = clonePtr(req.Success)
	cloned.Steps = CloneSteps(req.Steps)
	return cloned
}

func CloneSteps(steps []Step) []Step {
	cloned := make([]Step, len(steps))
	for i, step := range steps {
		cloned[i] = CloneStep(step)
	}
	return cloned
}

func CloneStep(step Step) Step {
	cloned := step
	cloned.Arguments = cloneMap(step.Arguments)
	cloned.LedToData = clonePtr(step.LedToData)
	cloned.EvaluatorNotes = clonePtr(step.EvaluatorNotes)
	return cloned
}

func clonePtr[T any](value *T) *T {
	if value == nil {
		return nil
	}
	copied := *value
	return &copied
}

func cloneMap(input map[string]any) map[string]any {
	if input == nil {
		return nil
	}
	out := make(map[string]any, len(input))
	for key, value := range input {
		out[key] = cloneValue(value)
	}
	return out
}

func cloneValue(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		return cloneMap(typed)
	case map[string]string:
		out := make(map[string]string, len(typed))
		for k, v := range typed {
			out[k] = v
		}
		return out
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = cloneValue(item)
		}
		return out
	case []string:
		return append([]string(nil), typed...)
	default:
		return value
	}
}
