package version

// Build holds the build identifier, injected via -ldflags "-X bizdesk/pkg/version.Build=...".
var Build = "dev"

// Info is reported by the health endpoint.
type Info struct {
	Service string `json:"service"`
	Build   string `json:"build"`
}

func Current() Info {
	return Info{Service: "bizdesk", Build: Build}
}
