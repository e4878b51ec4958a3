package codegen

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/DeusData/endpointgen/internal/config"
	"github.com/DeusData/endpointgen/internal/endpoint"
)

const toolkitModule = "@reduxjs/toolkit/query/react"

// renderAPI emits the data-access surface. descs must already be sorted.
func renderAPI(descs []*endpoint.Descriptor, cfg *config.Config) []byte {
	var buf bytes.Buffer
	buf.WriteString(header())

	needRetry := false
	for _, d := range descs {
		if d.MaxRetries > 0 {
			needRetry = true
			break
		}
	}

	symbols := []string{"createApi", "fetchBaseQuery"}
	if needRetry {
		symbols = append(symbols, "retry")
	}
	fmt.Fprintf(&buf, "import { %s } from %s;\n", strings.Join(symbols, ", "), quote(toolkitModule))
	writeTypeImports(&buf, descs)
	buf.WriteString("\n")

	baseQuery := cfg.BaseQuery
	if baseQuery == "" {
		baseQuery = fmt.Sprintf("fetchBaseQuery({ baseUrl: %s })", quote(cfg.BaseURL))
	}
	if needRetry {
		baseQuery = fmt.Sprintf("retry(%s, { maxRetries: 0 })", baseQuery)
	}

	buf.WriteString("export const api = createApi({\n")
	buf.WriteString("  reducerPath: \"api\",\n")
	fmt.Fprintf(&buf, "  baseQuery: %s,\n", baseQuery)
	fmt.Fprintf(&buf, "  tagTypes: [%s],\n", quotedList(collectTagTypes(descs)))
	buf.WriteString("  endpoints: (builder) => ({\n")
	for _, d := range descs {
		writeEndpoint(&buf, d)
	}
	buf.WriteString("  }),\n")
	buf.WriteString("});\n")

	hooks := make([]string, 0, len(descs))
	for _, d := range descs {
		hooks = append(hooks, hookName(d))
	}
	sort.Strings(hooks)
	if len(hooks) > 0 {
		buf.WriteString("\nexport const {\n")
		for _, h := range hooks {
			fmt.Fprintf(&buf, "  %s,\n", h)
		}
		buf.WriteString("} = api;\n")
	}
	return buf.Bytes()
}

// writeTypeImports aggregates every descriptor's type imports into one
// sorted import line per module path.
func writeTypeImports(buf *bytes.Buffer, descs []*endpoint.Descriptor) {
	byPath := make(map[string]map[string]bool)
	for _, d := range descs {
		for path, names := range d.TypeImports {
			if byPath[path] == nil {
				byPath[path] = make(map[string]bool)
			}
			for _, n := range names {
				byPath[path][n] = true
			}
		}
	}
	paths := make([]string, 0, len(byPath))
	for p := range byPath {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		names := make([]string, 0, len(byPath[p]))
		for n := range byPath[p] {
			names = append(names, n)
		}
		sort.Strings(names)
		fmt.Fprintf(buf, "import type { %s } from %s;\n", strings.Join(names, ", "), quote(p))
	}
}

func collectTagTypes(descs []*endpoint.Descriptor) []string {
	seen := make(map[string]bool)
	for _, d := range descs {
		for _, t := range d.TagTypes {
			seen[t] = true
		}
	}
	out := make([]string, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func quotedList(items []string) string {
	quoted := make([]string, len(items))
	for i, s := range items {
		quoted[i] = quote(s)
	}
	return strings.Join(quoted, ", ")
}

func hookName(d *endpoint.Descriptor) string {
	kind := "Mutation"
	if d.IsQuery() {
		kind = "Query"
	}
	return "use" + upperFirst(identifier(d.Name)) + kind
}

func writeEndpoint(buf *bytes.Buffer, d *endpoint.Descriptor) {
	kind := "mutation"
	if d.IsQuery() {
		kind = "query"
	}
	fmt.Fprintf(buf, "    %s: builder.%s<%s, %s>({\n", identifier(d.Name), kind, d.ResponseType, d.ArgsType)

	query := d.Query
	if query == "" {
		query = defaultQuery(d)
	}
	fmt.Fprintf(buf, "      query: %s,\n", query)

	if d.IsQuery() {
		if d.Provides != "" {
			fmt.Fprintf(buf, "      providesTags: %s,\n", d.Provides)
		}
	} else if d.Invalidates != "" {
		fmt.Fprintf(buf, "      invalidatesTags: %s,\n", d.Invalidates)
	}
	if d.MaxRetries > 0 {
		fmt.Fprintf(buf, "      extraOptions: { maxRetries: %d },\n", d.MaxRetries)
	}
	if len(d.OptimisticUpdates) > 0 && !d.IsQuery() {
		writeOptimistic(buf, d.OptimisticUpdates)
	}
	buf.WriteString("    }),\n")
}

// defaultQuery builds a request from the derived route when the endpoint
// declares no query function.
func defaultQuery(d *endpoint.Descriptor) string {
	url := quote(d.RoutePath)
	method := quote(d.UpperMethod())
	switch {
	case d.ArgsType == "void":
		return fmt.Sprintf("() => ({ url: %s, method: %s })", url, method)
	case d.IsQuery() || d.Method == "delete":
		return fmt.Sprintf("(args) => ({ url: %s, method: %s, params: args })", url, method)
	default:
		return fmt.Sprintf("(args) => ({ url: %s, method: %s, body: args })", url, method)
	}
}

// writeOptimistic patches each target query while the mutation is in
// flight and rolls every patch back if it fails.
func writeOptimistic(buf *bytes.Buffer, updates []endpoint.OptimisticUpdate) {
	buf.WriteString("      async onQueryStarted(args, { dispatch, queryFulfilled }) {\n")
	buf.WriteString("        const patches = [];\n")
	for _, u := range updates {
		patch := fmt.Sprintf("patches.push(dispatch(api.util.updateQueryData(%s, (%s)(args), (draft) => { (%s)(draft, args); })));",
			quote(u.Target), u.Args, u.Update)
		if u.Condition != "" {
			fmt.Fprintf(buf, "        if ((%s)(args)) {\n          %s\n        }\n", u.Condition, patch)
			continue
		}
		fmt.Fprintf(buf, "        %s\n", patch)
	}
	buf.WriteString("        try {\n")
	buf.WriteString("          await queryFulfilled;\n")
	buf.WriteString("        } catch {\n")
	buf.WriteString("          for (const patch of patches) patch.undo();\n")
	buf.WriteString("        }\n")
	buf.WriteString("      },\n")
}
