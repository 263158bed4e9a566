/*
Package manipulator generates the derived files of media items.

FileManipulator resolves the conversions of a media item, picks the first
generator able to read its original, and runs each conversion:

	generator.Convert -> imageproc.Processor.Apply -> responsive ladder
	-> filesystem write -> generated flag

The original is downloaded once per run. Conversions fail independently;
the failed one's generated flag is set to false and its error is reported
in Results. Every record change goes through media.Store.Update, so
concurrent runs for the same media item do not lose flags.

Queued conversions are handed to a Dispatcher (see internal/queue), which
later calls RegenerateByID. Without a dispatcher they run inline.

Errors are classified with Classify:

  - configuration: unknown conversion, unsupported source type
  - source_unavailable: original missing or unreadable
  - conversion: generator or image processor failed, or timed out
  - storage: writing the result failed
*/
package manipulator
