// Package xcontainer reads the metadata of console executable containers and
// reads and writes the indexed archive containers used to ship their assets.
//
// An executable container is loaded with [LoadExecutable] or [ParseExecutable].
// All offsets found in the file are validated against the file size before
// they are used, so malformed or hostile input yields an error and never a
// panic. The title identity and the embedded title image are available from
// the returned [Executable].
//
// An archive container is opened with [OpenArchive] or created with
// [CreateArchive]. Entries are listed, extracted to a writer or a file, and
// appended with [Archive.AddFile]. Metadata changes are written back by
// [Archive.Close].
//
// [Scan] catalogues the executables below a set of directories and
// [UnpackArchive] writes all entries of an archive to a [Target], either the
// local disk or memory.
//
// Configuration is done using the [Config], which is created with [NewConfig]
// and a set of options such as the logger, the telemetry hook and the input
// and extraction limits. Scan and unpack report their counters as
// [TelemetryData] to the configured hook.
package xcontainer
