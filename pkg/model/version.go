package model

// Version is reported by hello, the health endpoint and worker statistics.
const Version = "0.1.0"
