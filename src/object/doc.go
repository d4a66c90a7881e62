/*
Package object implements the signed, content-addressed objects exchanged by
herald nodes.

An Object is a JSON-like map. Properties whose name starts with an underscore
are reserved: some are part of the signed body (_t, _s, _prevlink,
_permalink), others are derived locally and never hashed (_link, _sigPubKey,
_author, _recipient, _inbound). The _virtual property lists additional
property names to leave out of the hash, which is how the first revision of an
object carries its own permalink.

The link of an object is the hex SHA-256 of the canonical encoding of its
body, that is the object without its virtual properties. The signature covers
the body minus _s, so the link commits to the signature as well.

Envelopes (_t = herald.Message) wrap a payload. They carry the sequence number
(_seq), send time (_time), the recipient's key (recipientPubKey), the payload
link (_payloadLink) and the link of the previous envelope sent to the same
recipient (_prevMsgLink). The payload itself travels alongside, under the
virtual "object" property.
*/
package object
