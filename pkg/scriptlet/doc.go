// Package scriptlet runs the side effects a trove declares beyond
// laying down files: creating users/groups, directories, systemd
// enablement, tmpfiles.d/sysctl.d entries, and (for adopted legacy
// packages) sandboxed imperative shell scriptlets. Every hook is
// root-aware: against the live root ("/") it uses native host tools;
// against a target root it edits files directly so the host is never
// touched.
package scriptlet
