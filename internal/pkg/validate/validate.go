// Package validate provides input validation for API path, query and body parameters.
package validate

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// FilterValueMaxLen bounds the filterValue and searchTerm parameters.
const FilterValueMaxLen = 512

// SnapshotNameMaxLen is the maximum allowed length of a stored snapshot name.
const SnapshotNameMaxLen = 128

// K8s name regex: DNS subdomain (RFC 1123), lowercase alphanumeric, '-' or '.'.
var k8sNameRe = regexp.MustCompile(`^[a-z0-9]([-a-z0-9]*[a-z0-9])?(\.[a-z0-9]([-a-z0-9]*[a-z0-9])?)*$`)

// SnapshotID validates a snapshot id from the path: a UUID.
func SnapshotID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// SnapshotName validates a snapshot name: printable, 1–SnapshotNameMaxLen chars.
func SnapshotName(name string) bool {
	if name == "" || len(name) > SnapshotNameMaxLen {
		return false
	}
	for _, r := range name {
		if r < 0x20 || r == 0x7f {
			return false
		}
	}
	return true
}

// Namespace validates namespace: empty (cluster-scoped) or valid DNS subdomain.
func Namespace(ns string) bool {
	if ns == "" {
		return true
	}
	if len(ns) > 253 {
		return false
	}
	return k8sNameRe.MatchString(strings.ToLower(ns))
}

// Name validates resource name: valid DNS subdomain.
func Name(name string) bool {
	if name == "" || len(name) > 253 {
		return false
	}
	return k8sNameRe.MatchString(strings.ToLower(name))
}

// FilterValue validates free text selection and search input. RBAC role and user
// names may contain ':' and '/', so only length and control characters are checked.
func FilterValue(v string) bool {
	if len(v) > FilterValueMaxLen {
		return false
	}
	for _, r := range v {
		if r < 0x20 {
			return false
		}
	}
	return true
}

// ManifestWarnings parses YAML (single or multi-doc) and returns warnings for rules that
// grant broad or escalating access: wildcard verbs or resources, and the escalate,
// bind and impersonate verbs. Callers log them; the manifest is still accepted.
func ManifestWarnings(content string) []string {
	var warnings []string
	for i, doc := range splitYAMLDocs(content) {
		doc = strings.TrimSpace(doc)
		if doc == "" {
			continue
		}
		var m map[string]interface{}
		if err := yaml.Unmarshal([]byte(doc), &m); err != nil {
			continue // decoding reports the error
		}
		walkForRisky(m, "/["+strconv.Itoa(i)+"]", &warnings)
	}
	return warnings
}

func splitYAMLDocs(content string) []string {
	return regexp.MustCompile(`(?m)^---\s*$`).Split(content, -1)
}

func walkForRisky(node interface{}, path string, warnings *[]string) {
	switch n := node.(type) {
	case map[string]interface{}:
		if rules, ok := n["rules"].([]interface{}); ok {
			for i, r := range rules {
				if rule, ok := r.(map[string]interface{}); ok {
					checkRule(rule, path+"/rules/["+strconv.Itoa(i)+"]", warnings)
				}
			}
		}
		for k, v := range n {
			if k == "rules" {
				continue
			}
			walkForRisky(v, path+"/"+k, warnings)
		}
	case []interface{}:
		for i, v := range n {
			walkForRisky(v, path+"/["+strconv.Itoa(i)+"]", warnings)
		}
	}
}

func checkRule(rule map[string]interface{}, path string, warnings *[]string) {
	for _, v := range toStrings(rule["verbs"]) {
		switch strings.ToLower(v) {
		case "*":
			*warnings = append(*warnings, path+" verbs: * (all verbs)")
		case "escalate", "bind", "impersonate":
			*warnings = append(*warnings, path+" verbs: "+v+" (privilege escalation)")
		}
	}
	for _, r := range toStrings(rule["resources"]) {
		if r == "*" {
			*warnings = append(*warnings, path+" resources: * (all resources)")
		}
	}
}

func toStrings(v interface{}) []string {
	list, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
