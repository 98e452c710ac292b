package cache

// Namespace is a known cache-using subsystem. The admin
// surface enumerates these even when empty; the registry below is the
// single source of truth so a typo in caller code fails fast rather than
// silently opening an unregistered namespace.
type Namespace string

const (
	NamespaceAnnotations     Namespace = "annotations"
	NamespaceHGNC            Namespace = "hgnc"
	NamespaceHTTP            Namespace = "http"
	NamespaceFiles           Namespace = "files"
	NamespacePubTator        Namespace = "pubtator"
	NamespaceGenCC           Namespace = "gencc"
	NamespacePanelApp        Namespace = "panelapp"
	NamespaceHPO             Namespace = "hpo"
	NamespaceClinGen         Namespace = "clingen"
	NamespaceNetworkAnalysis Namespace = "network_analysis"
)

// KnownNamespaces lists every registered namespace in a stable order, used
// by the admin health/stats surface so an empty namespace still appears.
var KnownNamespaces = []Namespace{
	NamespaceAnnotations, NamespaceHGNC, NamespaceHTTP, NamespaceFiles,
	NamespacePubTator, NamespaceGenCC, NamespacePanelApp, NamespaceHPO,
	NamespaceClinGen, NamespaceNetworkAnalysis,
}

// DependencyRegistration maps a derived view's underlying tables to the
// cache namespaces that must be purged when any of those tables mutate.
type DependencyRegistration struct {
	ViewName string
	Tables   []string
	Purges   []Namespace
}

// DependencyRegistry is the static derived-view dependency table.
var DependencyRegistry = []DependencyRegistration{
	{
		ViewName: "network_analysis_cache",
		Tables:   []string{"gene_annotations"},
		Purges:   []Namespace{NamespaceNetworkAnalysis},
	},
	{
		ViewName: "gene_scores_view",
		Tables:   []string{"gene_evidence"},
		Purges:   []Namespace{NamespaceAnnotations},
	},
}

// NamespacesForTable returns every namespace that must be invalidated when
// the given underlying table mutates.
func NamespacesForTable(table string) []Namespace {
	var out []Namespace
	seen := map[Namespace]bool{}
	for _, reg := range DependencyRegistry {
		for _, t := range reg.Tables {
			if t == table {
				for _, ns := range reg.Purges {
					if !seen[ns] {
						seen[ns] = true
						out = append(out, ns)
					}
				}
			}
		}
	}
	return out
}
