// Package collections manages the YAML configuration file that defines
// document collections and their context annotations.
//
// A collection names a directory tree and a glob pattern; sync walks
// the tree and mirrors matching files into the catalog. The config file
// is the source of truth for which collections exist; the SQLite
// catalog only mirrors their contents.
//
//	collections:
//	  - name: notes
//	    path: /home/me/notes
//	    pattern: "**/*.md"
//	    update: git pull --ff-only
//	contexts:
//	  - collection: notes
//	    path: infra
//	    context: infrastructure runbooks
//	global_context: personal knowledge base
//
// The engine treats the file as read-only; Add/Remove/Rename plus Save
// exist for the configuration surface.
package collections
