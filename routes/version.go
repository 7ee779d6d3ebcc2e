package routes

import (
	"net/http"
	"runtime"
)

// Set with -ldflags "-X safemigrator/routes.version=...".
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

type VersionResponse struct {
	Version   string `json:"version"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
	GitCommit string `json:"git_commit,omitempty"`
}

func Version() string { return version }

func VersionHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, VersionResponse{
		Version:   version,
		BuildTime: buildTime,
		GoVersion: runtime.Version(),
		GitCommit: gitCommit,
	})
}
