package codegen

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/DeusData/endpointgen/internal/config"
	"github.com/DeusData/endpointgen/internal/endpoint"
	"github.com/DeusData/endpointgen/internal/routes"
	"github.com/DeusData/endpointgen/internal/sink"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return config.Default(t.TempDir())
}

func sampleDescriptors() []*endpoint.Descriptor {
	return []*endpoint.Descriptor{
		{
			Name: "listTasks", Method: "get", RelPath: "tasks/list.ts",
			ImportPath: "@/endpoints/tasks/list", RoutePath: "/api/tasks",
			HasHandler: true, ResponseType: "Task[]", ArgsType: "void",
			Provides:    `["Task"]`,
			TagTypes:    []string{"Task"},
			TypeImports: map[string][]string{"@/types/task": {"Task"}},
		},
		{
			Name: "createTask", Method: "post", RelPath: "tasks/create.ts",
			ImportPath: "@/endpoints/tasks/create", RoutePath: "/api/tasks",
			HasHandler: true, ResponseType: "Task", ArgsType: "CreateTaskInput",
			Invalidates: `["Task", "Project"]`,
			TagTypes:    []string{"Project", "Task"},
			TypeImports: map[string][]string{"@/types/task": {"CreateTaskInput", "Task"}},
			OptimisticUpdates: []endpoint.OptimisticUpdate{{
				Target: "listTasks", Args: "() => undefined", Update: "(draft, a) => { draft.push(a) }",
			}},
		},
		{
			Name: "getProfile", Method: "get", RelPath: "users/profile/get.ts",
			ImportPath: "@/endpoints/users/profile/get", RoutePath: "/api/users/profile",
			HasHandler: true, ResponseType: "Profile", ArgsType: "{ id: string }",
			TypeImports: map[string][]string{"@/types/profile": {"Profile"}},
		},
		{
			Name: "health", Method: "get", RelPath: "health.ts",
			ImportPath: "@/endpoints/health", RoutePath: "/api/health",
			ResponseType: "unknown", ArgsType: "void",
		},
	}
}

func generate(t *testing.T, descs []*endpoint.Descriptor, cfg *config.Config) map[string]string {
	t.Helper()
	groups, err := routes.Build(descs, routes.DuplicateLastWins)
	if err != nil {
		t.Fatal(err)
	}
	out := make(map[string]string)
	for _, a := range Generate(descs, groups, cfg) {
		out[a.Path] = string(a.Content)
	}
	return out
}

func TestGenerateDeterministic(t *testing.T) {
	cfg := testConfig(t)
	descs := sampleDescriptors()
	want := Generate(descs, mustGroups(t, descs), cfg)

	reversed := make([]*endpoint.Descriptor, len(descs))
	for i, d := range descs {
		reversed[len(descs)-1-i] = d
	}
	rotated := append(append([]*endpoint.Descriptor(nil), descs[2:]...), descs[:2]...)

	for _, perm := range [][]*endpoint.Descriptor{reversed, rotated} {
		got := Generate(perm, mustGroups(t, perm), cfg)
		if len(got) != len(want) {
			t.Fatalf("artifact count %d, want %d", len(got), len(want))
		}
		for i := range want {
			if got[i].Path != want[i].Path || !bytes.Equal(got[i].Content, want[i].Content) {
				t.Errorf("artifact %s differs under permutation", want[i].Path)
			}
		}
	}
}

func mustGroups(t *testing.T, descs []*endpoint.Descriptor) map[string]*routes.Group {
	t.Helper()
	groups, err := routes.Build(descs, routes.DuplicateLastWins)
	if err != nil {
		t.Fatal(err)
	}
	return groups
}

func TestGenerateAPI(t *testing.T) {
	cfg := testConfig(t)
	api := generate(t, sampleDescriptors(), cfg)[filepath.Join(cfg.OutDir, APIFile)]

	if !strings.HasPrefix(api, sink.Header+"\n") {
		t.Error("missing generated header")
	}
	wantLines := []string{
		`import { createApi, fetchBaseQuery } from "@reduxjs/toolkit/query/react";`,
		`import type { Profile } from "@/types/profile";`,
		`import type { CreateTaskInput, Task } from "@/types/task";`,
		`  baseQuery: fetchBaseQuery({ baseUrl: "/" }),`,
		`  tagTypes: ["Project", "Task"],`,
		`    listTasks: builder.query<Task[], void>({`,
		`      query: () => ({ url: "/api/tasks", method: "GET" }),`,
		`      providesTags: ["Task"],`,
		`    createTask: builder.mutation<Task, CreateTaskInput>({`,
		`      query: (args) => ({ url: "/api/tasks", method: "POST", body: args }),`,
		`      invalidatesTags: ["Task", "Project"],`,
		`      query: (args) => ({ url: "/api/users/profile", method: "GET", params: args }),`,
		`        patches.push(dispatch(api.util.updateQueryData("listTasks", (() => undefined)(args), (draft) => { ((draft, a) => { draft.push(a) })(draft, args); })));`,
		`          for (const patch of patches) patch.undo();`,
		`  useCreateTaskMutation,`,
		`  useHealthQuery,`,
	}
	for _, line := range wantLines {
		if !strings.Contains(api, line+"\n") {
			t.Errorf("api.ts missing line %q", line)
		}
	}
	if strings.Contains(api, "retry") || strings.Contains(api, "extraOptions") {
		t.Error("retry wrapper must be absent when no endpoint sets maxRetries")
	}
	if strings.Index(api, "  createTask:") > strings.Index(api, "  listTasks:") {
		t.Error("endpoints must be sorted by name")
	}
	if strings.Index(api, "@/types/profile") > strings.Index(api, "@/types/task") {
		t.Error("type imports must be sorted by path")
	}
}

func TestGenerateRetry(t *testing.T) {
	cfg := testConfig(t)
	descs := sampleDescriptors()
	descs[1].MaxRetries = 3
	api := generate(t, descs, cfg)[filepath.Join(cfg.OutDir, APIFile)]

	if !strings.Contains(api, `import { createApi, fetchBaseQuery, retry } from`) {
		t.Error("retry not imported")
	}
	if !strings.Contains(api, `baseQuery: retry(fetchBaseQuery({ baseUrl: "/" }), { maxRetries: 0 }),`) {
		t.Error("base transport not wrapped in retry")
	}
	if n := strings.Count(api, "extraOptions:"); n != 1 {
		t.Errorf("extraOptions count = %d, want 1", n)
	}
	if !strings.Contains(api, "extraOptions: { maxRetries: 3 },") {
		t.Error("retry count not emitted")
	}
}

func TestGenerateCustomBaseQuery(t *testing.T) {
	cfg := testConfig(t)
	cfg.BaseURL = ""
	cfg.BaseQuery = "authedBaseQuery"
	api := generate(t, sampleDescriptors(), cfg)[filepath.Join(cfg.OutDir, APIFile)]
	if !strings.Contains(api, "  baseQuery: authedBaseQuery,\n") {
		t.Error("custom transport not used")
	}
}

func TestGenerateOptimisticCondition(t *testing.T) {
	cfg := testConfig(t)
	descs := sampleDescriptors()
	descs[1].OptimisticUpdates = append(descs[1].OptimisticUpdates, endpoint.OptimisticUpdate{
		Target: "getProfile", Args: "(a) => a.owner", Update: "(d) => d", Condition: "(a) => !!a.owner",
	})
	api := generate(t, descs, cfg)[filepath.Join(cfg.OutDir, APIFile)]
	if !strings.Contains(api, "        if (((a) => !!a.owner)(args)) {\n") {
		t.Error("condition guard missing")
	}
	if n := strings.Count(api, "patches.push("); n != 2 {
		t.Errorf("patch count = %d, want 2", n)
	}
}

func TestGenerateStaticArtifacts(t *testing.T) {
	cfgA, cfgB := testConfig(t), testConfig(t)
	a := generate(t, sampleDescriptors(), cfgA)
	b := generate(t, nil, cfgB)
	for _, name := range []string{StoreFile, InvalidateFile} {
		if a[filepath.Join(cfgA.OutDir, name)] != b[filepath.Join(cfgB.OutDir, name)] {
			t.Errorf("%s depends on the descriptor set", name)
		}
	}
}

func TestGenerateRouteFiles(t *testing.T) {
	cfg := testConfig(t)
	files := generate(t, sampleDescriptors(), cfg)

	tasks, ok := files[filepath.Join(cfg.RoutesDir, "tasks", "route.ts")]
	if !ok {
		t.Fatal("tasks route file missing")
	}
	want := sink.Header + "\n" +
		"import { createRouteHandler } from \"@/lib/endpoint/server\";\n" +
		"import createTask from \"@/endpoints/tasks/create\";\n" +
		"import listTasks from \"@/endpoints/tasks/list\";\n" +
		"\n" +
		"export const GET = createRouteHandler(listTasks);\n" +
		"export const POST = createRouteHandler(createTask);\n"
	if tasks != want {
		t.Errorf("tasks route.ts =\n%s\nwant\n%s", tasks, want)
	}

	if _, ok := files[filepath.Join(cfg.RoutesDir, "users", "profile", "route.ts")]; !ok {
		t.Error("nested route file missing")
	}
	if _, ok := files[filepath.Join(cfg.RoutesDir, "health", "route.ts")]; ok {
		t.Error("client-only endpoint must not get a route file")
	}
}

func TestGenerateRouteIgnoreAndDisable(t *testing.T) {
	cfg := testConfig(t)
	cfg.IgnoreRoutes = []string{"users"}
	artifacts := Generate(sampleDescriptors(), mustGroups(t, sampleDescriptors()), cfg)
	if n := RouteArtifacts(artifacts); n != 1 {
		t.Errorf("route artifacts = %d, want 1", n)
	}

	cfg.RoutesDir = ""
	artifacts = Generate(sampleDescriptors(), mustGroups(t, sampleDescriptors()), cfg)
	if len(artifacts) != 3 || RouteArtifacts(artifacts) != 0 {
		t.Errorf("artifacts = %d, want only the 3 fixed ones", len(artifacts))
	}
}

func TestRouteRelativeImport(t *testing.T) {
	cfg := testConfig(t)
	d := &endpoint.Descriptor{
		Name: "ping", Method: "get", RelPath: "ping.ts",
		SourcePath: filepath.Join(cfg.SourceDir, "ping.ts"),
		ImportPath: "../endpoints/ping", RoutePath: "/api/ping", HasHandler: true,
	}
	file := RoutePath(cfg.RoutesDir, d.RoutePath)
	got := generate(t, []*endpoint.Descriptor{d}, cfg)[file]
	rel, err := filepath.Rel(filepath.Dir(file), filepath.Join(cfg.SourceDir, "ping"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(got, "import ping from \""+filepath.ToSlash(rel)+"\";\n") {
		t.Errorf("route.ts =\n%s", got)
	}
}

func TestIdentifier(t *testing.T) {
	tests := map[string]string{
		"listTasks": "listTasks",
		"get-task":  "get_task",
		"2fa":       "_2fa",
		"":          "_",
	}
	for in, want := range tests {
		if got := identifier(in); got != want {
			t.Errorf("identifier(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRoutePath(t *testing.T) {
	if got := RoutePath("/r", "/api"); got != filepath.Join("/r", "route.ts") {
		t.Errorf("RoutePath(/api) = %s", got)
	}
	if got := RoutePath("/r", "/api/billing/invoices"); got != filepath.Join("/r", "billing", "invoices", "route.ts") {
		t.Errorf("RoutePath = %s", got)
	}
}
