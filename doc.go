/*
Package doctable turns a collection of schema-less documents into a flat table,
applies column edits and read-only SQL queries to it, and writes the result
back as the full replacement contents of the collection.

The pieces:

1. Project maps documents to a Table (union of fields, first-seen order) and
Table.Documents maps it back. The store-assigned IDField never appears in a
table.

2. Serialize makes a cell queryable by a relational engine: lists and nested
documents become JSON text, timestamps become RFC 3339 text, scalars pass
through. The mapping is one-way; query results are never decoded back.

3. Transforms (AddColumn, MergeColumns, RemoveColumns, RenameColumn,
ConditionalUpdate, SetCell) return a new table and never modify their input.

4. Execute runs a single read-only statement against the serialized table,
exposed to the QueryEngine under RelationName.

5. Store is the boundary toward the document store. ReplaceAll deletes every
document of a collection and inserts the new ones; it is not atomic from the
caller's point of view, so a failure may leave the collection partially
written.

Session ties these together around a single current table.

# Collisions

Column names stay unique after every transform:

  - AddColumn and MergeColumns overwrite an existing column of the same name
    in place.
  - RenameColumn onto an existing name drops that column; the renamed one
    keeps its position.
  - MergeColumns with drop keeps whichever original equals the new name.

# Text form

Merging and matching compare cells by FormatValue: strings verbatim, null as
the empty string, booleans as true/false, numbers in the shortest decimal
form, timestamps as RFC 3339 and composites as their serialized JSON.
*/
package doctable
