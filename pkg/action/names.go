package action

const prefix = "cluster:admin/opensearch/ml/"

// Actions on controllers of the legacy family.
const (
	ControllerCreate   = prefix + "controllers/create"
	ControllerGet      = prefix + "controllers/get"
	ControllerUpdate   = prefix + "controllers/update"
	ControllerDelete   = prefix + "controllers/delete"
	ControllerDeploy   = prefix + "controllers/deploy"
	ControllerUndeploy = prefix + "controllers/undeploy"
)

// Actions on model controllers.
const (
	ModelControllerCreate   = prefix + "model_controllers/create"
	ModelControllerGet      = prefix + "model_controllers/get"
	ModelControllerUpdate   = prefix + "model_controllers/update"
	ModelControllerDelete   = prefix + "model_controllers/delete"
	ModelControllerDeploy   = prefix + "model_controllers/deploy"
	ModelControllerUndeploy = prefix + "model_controllers/undeploy"
)

// Actions on memory containers.
const (
	MemoryContainerCreate = prefix + "memory_containers/create"
	MemoryContainerGet    = prefix + "memory_containers/get"
	MemoryContainerUpdate = prefix + "memory_containers/update"
	MemoryContainerDelete = prefix + "memory_containers/delete"
	MemoryContainerSearch = prefix + "memory_containers/search"
	MemoriesAdd           = prefix + "memory_containers/memories/add"
)

// NodeAction is the name of the per-node sub action of a broadcast action.
func NodeAction(name string) string {
	return name + "[n]"
}
