package graph

// Record is the persisted form of a node, written to nodes.json after every
// engine step and read back by the task graph API.
type Record struct {
	NID        string                  `json:"nid"`
	TaskInfo   TaskInfo                `json:"task_info"`
	NodeType   NodeType                `json:"node_type"`
	Status     Status                  `json:"status"`
	Layer      int                     `json:"layer"`
	Parents    []string                `json:"parent_nodes"`
	RawPlan    []PlanItem              `json:"raw_plan"`
	Result     map[Action]ActionRecord `json:"result"`
	InnerGraph GraphRecord             `json:"inner_graph"`
}

// GraphRecord is the persisted form of an inner graph.
type GraphRecord struct {
	TaskList []string `json:"task_list"`
	Queue    []Record `json:"topological_task_queue"`
}

// Record snapshots n and everything below it.
func (n *Node) Record() Record {
	rec := Record{
		NID:      n.ID,
		TaskInfo: n.Info,
		NodeType: n.Type,
		Status:   n.Status,
		Layer:    n.Layer,
		Parents:  []string{},
		RawPlan:  n.RawPlan,
		Result:   make(map[Action]ActionRecord, len(n.Results)),
		InnerGraph: GraphRecord{
			TaskList: []string{},
			Queue:    []Record{},
		},
	}
	for _, p := range n.Parents {
		rec.Parents = append(rec.Parents, p.ID)
	}
	for k, v := range n.Results {
		rec.Result[k] = v
	}
	for _, c := range n.Queue() {
		rec.InnerGraph.TaskList = append(rec.InnerGraph.TaskList, c.String())
		rec.InnerGraph.Queue = append(rec.InnerGraph.Queue, c.Record())
	}
	return rec
}

// Walk visits r and every nested record depth first.
func (r *Record) Walk(fn func(*Record)) {
	fn(r)
	for i := range r.InnerGraph.Queue {
		r.InnerGraph.Queue[i].Walk(fn)
	}
}
