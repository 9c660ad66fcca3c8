package store

const schemaVersion = 1

const traceSchema = `
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS traces (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL UNIQUE,
    lines INTEGER NOT NULL,
    cpus INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS processes (
    trace_id INTEGER NOT NULL REFERENCES traces(id),
    pid TEXT NOT NULL,
    name TEXT,
    PRIMARY KEY (trace_id, pid)
);

CREATE TABLE IF NOT EXISTS threads (
    trace_id INTEGER NOT NULL REFERENCES traces(id),
    pid TEXT NOT NULL,
    tid TEXT NOT NULL,
    name TEXT NOT NULL,
    PRIMARY KEY (trace_id, pid, tid)
);

CREATE TABLE IF NOT EXISTS event_counts (
    trace_id INTEGER NOT NULL REFERENCES traces(id),
    kind TEXT NOT NULL,
    pid TEXT NOT NULL,
    tid TEXT NOT NULL,
    count INTEGER NOT NULL,
    PRIMARY KEY (trace_id, kind, pid, tid)
);

CREATE TABLE IF NOT EXISTS cpu_kernel_counts (
    trace_id INTEGER NOT NULL REFERENCES traces(id),
    call TEXT NOT NULL,
    cpu TEXT NOT NULL,
    count INTEGER NOT NULL,
    PRIMARY KEY (trace_id, call, cpu)
);

CREATE TABLE IF NOT EXISTS thread_kernel_counts (
    trace_id INTEGER NOT NULL REFERENCES traces(id),
    pid TEXT NOT NULL,
    tid TEXT NOT NULL,
    call TEXT NOT NULL,
    count INTEGER NOT NULL,
    PRIMARY KEY (trace_id, pid, tid, call)
);

CREATE TABLE IF NOT EXISTS thread_cpu_events (
    trace_id INTEGER NOT NULL REFERENCES traces(id),
    pid TEXT NOT NULL,
    tid TEXT NOT NULL,
    seq INTEGER NOT NULL,
    cpu TEXT NOT NULL,
    call TEXT NOT NULL,
    PRIMARY KEY (trace_id, pid, tid, seq)
);

CREATE TABLE IF NOT EXISTS running_time (
    trace_id INTEGER NOT NULL REFERENCES traces(id),
    pid TEXT NOT NULL,
    tid TEXT NOT NULL,
    total_us INTEGER NOT NULL,
    total_ms REAL NOT NULL,
    cpu_usage REAL NOT NULL,
    PRIMARY KEY (trace_id, pid, tid)
);
`
