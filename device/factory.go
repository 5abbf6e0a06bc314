package device

type Factory interface {
	FromSpec(spec DeviceSpec) (Model, error)
}

type FactoryDocs interface {
	Help() string
}
