package config

type WorkerKeyStruct struct {
	PersistViolationsQueue string
}

var WorkerKey = &WorkerKeyStruct{
	PersistViolationsQueue: "cbt:persist_violations_queue",
}
