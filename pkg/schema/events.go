package schema

// Event names emitted by the diagram and the manager.
const (
	// Outward events, consumed by the host application.
	EventCoordinatesChanged  = "coordinates_changed"
	EventDependenciesChanged = "dependencies_changed"
	EventNodeClicked         = "node_clicked"
	EventNewOutputAction     = "new_output_action"

	// Lifecycle events on the internal bus.
	EventShapeCreated       = "shape_created"
	EventShapeRemoved       = "shape_removed"
	EventConnectorCreated   = "connector_created"
	EventConnectorAttached  = "connector_attached"
	EventConnectorRemoved   = "connector_removed"
	EventMiddlePointInit    = "middle_point_init"
	EventMiddlePointRemoved = "middle_point_removed"
	EventSelectionChanged   = "selection_changed"
	EventToolbarsHidden     = "toolbars_hidden"
)

// OutwardEvents lists the events forwarded to the host.
var OutwardEvents = []string{
	EventCoordinatesChanged,
	EventDependenciesChanged,
	EventNodeClicked,
	EventNewOutputAction,
}
