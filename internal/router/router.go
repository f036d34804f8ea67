// Package router decides which front-end session claims a dialog request.
// Matching is loose containment: after normalizing case and separators, a
// request workspace and a local root match when one equals or is a path
// ancestor of the other. An agent may report a subdirectory while the
// session's open root is an ancestor, or the other way around.
package router

import "strings"

// NormalizePath canonicalizes a workspace path for comparison: backslashes
// become forward slashes, letters fold to lower case, and trailing
// separators are trimmed. The root path stays "/".
func NormalizePath(p string) string {
	p = strings.ToLower(strings.ReplaceAll(strings.TrimSpace(p), "\\", "/"))
	trimmed := strings.TrimRight(p, "/")
	if trimmed == "" && p != "" {
		return "/"
	}
	return trimmed
}

// SameOrContains reports whether two workspace paths identify the same or a
// containing workspace, in either direction.
func SameOrContains(a, b string) bool {
	a = NormalizePath(a)
	b = NormalizePath(b)
	return a == b || isAncestor(a, b) || isAncestor(b, a)
}

// isAncestor expects normalized inputs. Boundaries are segment-aware so
// "/app" is not an ancestor of "/apple".
func isAncestor(parent, child string) bool {
	if parent == "" || child == "" {
		return false
	}
	if parent == "/" {
		return strings.HasPrefix(child, "/")
	}
	return strings.HasPrefix(child, parent+"/")
}

// ShouldClaim reports whether a session with the given open workspace roots
// should surface the request. An empty root set claims everything (the
// global front-end fallback), as does a request carrying no workspace at
// all. Claims are not exclusive; duplicate claims across sessions are made
// harmless by at-most-once resolution in the registry.
func ShouldClaim(requestWorkspace string, openWorkspaces []string) bool {
	if len(openWorkspaces) == 0 {
		return true
	}
	if NormalizePath(requestWorkspace) == "" {
		return true
	}
	for _, root := range openWorkspaces {
		if NormalizePath(root) == "" {
			continue
		}
		if SameOrContains(requestWorkspace, root) {
			return true
		}
	}
	return false
}
