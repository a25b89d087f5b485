// Command uniloader is the operator CLI for the uniloader media download
// service.
//
// It runs the daemon in the foreground (serve), describes media locally
// through yt-dlp (describe), drives a running daemon over HTTP (download,
// status), inspects and purges the retention ledger (artifacts), and manages
// configuration files (config).
package main
