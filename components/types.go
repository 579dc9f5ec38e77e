package components

type PanicHandlerFunc func()
