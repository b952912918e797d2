package diagram

import "github.com/rendis/wireflow/pkg/schema"

// Lookups are linear scans over the registries.

func (d *Diagram) GetShapeByID(id string) *NodeShape {
	for _, s := range d.Shapes {
		if s.ID == id {
			return s
		}
	}
	return nil
}

func (d *Diagram) GetShapeByGeneralItemID(generalItemID string) *NodeShape {
	for _, s := range d.Shapes {
		if s.GeneralItemID == generalItemID {
			return s
		}
	}
	return nil
}

func (d *Diagram) GetPortByID(id string) *Port {
	for _, p := range d.Ports {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func (d *Diagram) GetInputPortByGeneralItemID(generalItemID string) *Port {
	for _, p := range d.Ports {
		if p.IsInput && p.GeneralItemID == generalItemID {
			return p
		}
	}
	return nil
}

// GetOutputPortByGeneralItemID finds an output by item and action.
// schema.ActionInRange selects the proximity output.
func (d *Diagram) GetOutputPortByGeneralItemID(generalItemID, action string) *Port {
	for _, p := range d.Ports {
		if !p.IsInput && p.GeneralItemID == generalItemID && p.Action == action {
			return p
		}
	}
	return nil
}

func (d *Diagram) GetConnectorByID(id string) *Connector {
	for _, c := range d.Connectors {
		if c.ID == id {
			return c
		}
	}
	return nil
}

func (d *Diagram) GetConnectorsByPortID(portID string) []*Connector {
	var out []*Connector
	for _, c := range d.Connectors {
		if (c.InputPort != nil && c.InputPort.ID == portID) || (c.OutputPort != nil && c.OutputPort.ID == portID) {
			out = append(out, c)
		}
	}
	return out
}

func (d *Diagram) GetMiddlePointByID(id string) *MiddlePoint {
	if id == "" {
		return nil
	}
	for _, mp := range d.MiddlePoints {
		if mp.ID == id {
			return mp
		}
	}
	return nil
}

// GetMiddlePointByConnector returns the nearest middle point owning c. A
// connector is owned by the middle point it feeds and by every descendant
// of that middle point.
func (d *Diagram) GetMiddlePointByConnector(c *Connector) *MiddlePoint {
	var best *MiddlePoint
	bestDepth := -1
	for _, mp := range d.MiddlePoints {
		depth := mp.ownershipDepth(c)
		if depth >= 0 && (best == nil || depth < bestDepth) {
			best, bestDepth = mp, depth
		}
	}
	return best
}

// GetMainMiddlePoints returns the roots.
func (d *Diagram) GetMainMiddlePoints() []*MiddlePoint {
	var out []*MiddlePoint
	for _, mp := range d.MiddlePoints {
		if mp.IsRoot() {
			out = append(out, mp)
		}
	}
	return out
}

// GetMainMiddlePoint returns the root middle point of an item, or nil.
func (d *Diagram) GetMainMiddlePoint(generalItemID string) *MiddlePoint {
	for _, mp := range d.GetMainMiddlePoints() {
		if mp.GeneralItemID == generalItemID {
			return mp
		}
	}
	return nil
}

// GetSingleConnector returns the direct port-to-port connector feeding the
// item, used when its condition is a bare terminal.
func (d *Diagram) GetSingleConnector(generalItemID string) *Connector {
	for _, c := range d.Connectors {
		if c.InputPort != nil && c.InputPort.GeneralItemID == generalItemID && c.IsSingle() && c.State != StateRemoved {
			return c
		}
	}
	return nil
}

// ConnectorsForDependency returns the connectors standing for dep.
func (d *Diagram) ConnectorsForDependency(dep *schema.Dependency) []*Connector {
	var out []*Connector
	for _, c := range d.Connectors {
		if c.Dependency == dep {
			out = append(out, c)
		}
	}
	return out
}
