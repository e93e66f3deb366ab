// Command tagctl is a command line utility for the image tagger.
//
// Usage:
//
//	tagctl [--db FILE] [--verbose] <command>
//
// Commands:
//
//	scan <dir>    Describe and tag every new or changed image in dir and wait
//	              for the run to finish. Progress is redrawn in place on a
//	              terminal. --force reprocesses unchanged images,
//	              --no-recursive limits the scan to the top level and
//	              --no-metadata skips embedding.
//
//	status        Print record counts per status and the folder registry.
//
//	tags <text>   Print the tags the pipeline would extract from a
//	              description, without calling the model.
//
// Environment:
//
// tagctl reads the same configuration as the server (CONFIG_FILE,
// DATABASE_DIR, OLLAMA_SERVER, OLLAMA_MODEL and so on). Use --db to point
// at a different database file.
package main
