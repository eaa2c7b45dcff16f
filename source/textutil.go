// Copyright 2026 Quarrydocs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package source

import (
	"path"
	"regexp"
	"strings"

	"github.com/quarrydocs/quarry/core"
)

var binaryExts = map[string]struct{}{
	".png": {}, ".jpg": {}, ".jpeg": {}, ".gif": {}, ".bmp": {}, ".svg": {},
	".ico": {}, ".webp": {}, ".pdf": {}, ".zip": {}, ".tar": {}, ".gz": {}, ".7z": {},
	".mp3": {}, ".mp4": {}, ".mov": {}, ".avi": {}, ".mkv": {}, ".exe": {}, ".dll": {}, ".so": {},
	".woff": {}, ".woff2": {}, ".ttf": {}, ".eot": {},
}

var docExts = map[string]struct{}{
	".md": {}, ".markdown": {}, ".html": {}, ".htm": {}, ".txt": {},
}

var codeExts = map[string]struct{}{
	".py": {}, ".js": {}, ".ts": {}, ".tsx": {}, ".jsx": {}, ".go": {}, ".rs": {},
	".c": {}, ".h": {}, ".cpp": {}, ".hpp": {}, ".java": {}, ".kt": {}, ".rb": {},
	".php": {}, ".sh": {}, ".ps1": {}, ".cs": {}, ".scala": {}, ".swift": {}, ".lua": {},
	".pl": {}, ".sql": {}, ".yaml": {}, ".yml": {}, ".toml": {}, ".ini": {}, ".json": {},
	".gradle": {}, ".make": {}, ".mk": {}, ".dockerfile": {},
}

// IsProbablyBinary reports whether the path's extension marks content
// that cannot be ingested as text.
func IsProbablyBinary(p string) bool {
	_, ok := binaryExts[strings.ToLower(path.Ext(p))]
	return ok
}

// ClassifyPath maps a file path to a content kind. The second return is
// false for files that are neither documentation nor code, which the
// git fetcher skips entirely.
func ClassifyPath(p string) (core.ContentKind, bool) {
	lower := strings.ToLower(p)
	ext := path.Ext(lower)

	if _, ok := docExts[ext]; ok {
		return core.ContentDoc, true
	}
	if _, ok := codeExts[ext]; ok {
		return core.ContentCode, true
	}
	// Root-level extensionless Dockerfile counts as code.
	if ext == "" && path.Base(lower) == lower && lower == "dockerfile" {
		return core.ContentCode, true
	}
	return "", false
}

// IsDocExt reports whether the path ends in a documentation extension
// (markdown, html, plain text).
func IsDocExt(p string) bool {
	_, ok := docExts[strings.ToLower(path.Ext(p))]
	return ok
}

var (
	trailingSpaceRE = regexp.MustCompile(`[ \t]+\n`)
	multiNewlineRE  = regexp.MustCompile(`\n{3,}`)
)

// NormalizeWhitespace canonicalizes line endings, strips trailing
// whitespace on each line, collapses runs of blank lines, and trims the
// result. Chunking and fingerprinting both depend on this running
// before any text is stored.
func NormalizeWhitespace(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = trailingSpaceRE.ReplaceAllString(s, "\n")
	s = multiNewlineRE.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

const maxCollectionNameLen = 60

// CollectionName derives a stable vector-store collection name from the
// ingestion source URL.
func CollectionName(sourceURL string) string {
	name := strings.ToLower(sourceURL)
	name = strings.TrimPrefix(name, "https://")
	name = strings.TrimPrefix(name, "http://")
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, ":", "_")
	name = strings.Trim(name, "_")
	if name == "" {
		name = "corpus"
	}
	if len(name) > maxCollectionNameLen {
		name = name[:maxCollectionNameLen]
	}
	return name
}
