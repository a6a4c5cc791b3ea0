package container

// Names under which the host application context exposes shared
// infrastructure to child containers.
const (
	ParentPool        = "pool"
	ParentORM         = "orm"
	ParentLogger      = "logger"
	ParentTerminology = "terminology"
	ParentFHIRBaseURL = "fhirBaseURL"
)
