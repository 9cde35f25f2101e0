package kernel

// BindJSON binds the request body into obj.
func (rt *RequestRuntime) BindJSON(obj any) error {
	return rt.RequestContext.ShouldBindJSON(obj)
}
