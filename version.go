package parley

// Version is the library version reported by the CLI.
const Version = "0.1.0"
