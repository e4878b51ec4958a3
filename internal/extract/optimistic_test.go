package extract

import (
	"reflect"
	"testing"

	"github.com/DeusData/endpointgen/internal/endpoint"
)

func TestParseOptimistic(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []endpoint.OptimisticUpdate
	}{
		{
			name: "single",
			text: `{ target: "listTasks", args: () => undefined, update: (draft, a) => { draft.push(a) } }`,
			want: []endpoint.OptimisticUpdate{{
				Target: "listTasks",
				Args:   "() => undefined",
				Update: "(draft, a) => { draft.push(a) }",
			}},
		},
		{
			name: "single ignores condition",
			text: `{ target: 'getTask', args: (a) => a.id, update: (d) => d, condition: (a) => true }`,
			want: []endpoint.OptimisticUpdate{{Target: "getTask", Args: "(a) => a.id", Update: "(d) => d"}},
		},
		{
			name: "single missing update",
			text: `{ target: "listTasks", args: () => undefined }`,
		},
		{
			name: "single non-literal target",
			text: `{ target: TARGET, args: () => undefined, update: (d) => d }`,
		},
		{
			name: "multi",
			text: `{
				updates: [
					{ target: "listTasks", args: () => undefined, update: (d, a) => { d.push(a) } },
					{ target: "getTask", args: (a) => a.id, update: (d, a) => Object.assign(d, a), condition: (a) => a.id !== "}" },
				],
			}`,
			want: []endpoint.OptimisticUpdate{
				{Target: "listTasks", Args: "() => undefined", Update: "(d, a) => { d.push(a) }"},
				{Target: "getTask", Args: "(a) => a.id", Update: "(d, a) => Object.assign(d, a)", Condition: `(a) => a.id !== "}"`},
			},
		},
		{
			name: "multi drops incomplete elements",
			text: `{ updates: [ { target: "a", update: (d) => d }, { target: "b", args: () => 1, update: (d) => d } ] }`,
			want: []endpoint.OptimisticUpdate{{Target: "b", Args: "() => 1", Update: "(d) => d"}},
		},
		{
			name: "target inside a string does not select single",
			text: `{ updates: [ { target: "target: x", args: () => 1, update: (d) => d } ] }`,
			want: []endpoint.OptimisticUpdate{{Target: "target: x", Args: "() => 1", Update: "(d) => d"}},
		},
		{
			name: "updates not an array",
			text: `{ updates: buildUpdates() }`,
		},
		{
			name: "not an object",
			text: `makeOptimistic()`,
		},
		{
			name: "unrecognized keys",
			text: `{ foo: 1 }`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseOptimistic(tt.text)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("parseOptimistic =\n%+v\nwant\n%+v", got, tt.want)
			}
		})
	}
}

func TestTagTypes(t *testing.T) {
	got := tagTypes(`['Task', "tasks", { type: "Project", id: "LIST" }]`, "[`Task`, `User`]", "")
	want := []string{"LIST", "Project", "Task", "User"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("tagTypes = %v, want %v", got, want)
	}
	if got := tagTypes(`["lower"]`, ""); got != nil {
		t.Errorf("tagTypes = %v, want nil", got)
	}
}
