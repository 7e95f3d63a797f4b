package common

const (
	ComponentDispatcher    = "dispatcher"
	ComponentIndex         = "index"
	ComponentFetcher       = "fetcher"
	ComponentDatasource    = "datasource"
	ComponentMessageBuffer = "message-buffer"
	ComponentRPC           = "rpc"
	ComponentStateStore    = "state-store"
	ComponentMaintenance   = "maintenance"
	ComponentNotifier      = "notifier"
	ComponentAPI           = "api"
)

var AllComponents = map[string]struct{}{
	ComponentDispatcher:    {},
	ComponentIndex:         {},
	ComponentFetcher:       {},
	ComponentDatasource:    {},
	ComponentMessageBuffer: {},
	ComponentRPC:           {},
	ComponentStateStore:    {},
	ComponentMaintenance:   {},
	ComponentNotifier:      {},
	ComponentAPI:           {},
}
