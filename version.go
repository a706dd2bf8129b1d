package printd

const Version = "v0.1.0"
