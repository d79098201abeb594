package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/ConaryLabs/Conary-sub004/pkg/store"
)

var (
	dbPath     = flag.String("db-path", "/var/lib/conary/conary.db", "Path to the conary metadata database")
	dryRun     = flag.Bool("dry-run", false, "Report the current schema version without applying migrations")
	backupPath = flag.String("backup", "", "Path to back up the database before migrating (default: <db-path>.backup)")
)

// main runs pkg/store's migration chain standalone, for packaging scripts
// that want the schema brought up to date before the conary binary itself
// ever opens the database (store.Open already runs migrations inline, so
// this tool exists purely for operators who want that step as a separate,
// auditable pre-flight).
func main() {
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("conary metadata migration tool")

	if _, err := os.Stat(*dbPath); os.IsNotExist(err) {
		log.Fatalf("database not found at %s", *dbPath)
	}

	if *dryRun {
		version, err := store.SchemaVersion(*dbPath)
		if err != nil {
			log.Fatalf("read schema version: %v", err)
		}
		fmt.Printf("current schema version: %d (latest: %d)\n", version, store.LatestSchemaVersion())
		return
	}

	backup := *backupPath
	if backup == "" {
		backup = *dbPath + ".backup"
	}
	log.Printf("backing up %s to %s", *dbPath, backup)
	if err := copyFile(*dbPath, backup); err != nil {
		log.Fatalf("backup failed: %v", err)
	}

	db, err := store.Open(*dbPath)
	if err != nil {
		log.Fatalf("migration failed: %v", err)
	}
	defer db.Close()

	log.Println("migrations applied successfully")
}

func copyFile(src, dst string) error {
	input, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, input, 0o600)
}
