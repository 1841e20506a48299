package keys

import (
	"context"
	"crypto/rsa"

	"github.com/sirupsen/logrus"

	"github.com/Vasu1712/scenyx-securechat/internal/crypto"
	"github.com/Vasu1712/scenyx-securechat/internal/errs"
	"github.com/Vasu1712/scenyx-securechat/internal/models"
)

// Resolve turns a conversation record into a Conversation ready for the
// protocol client. self defaults to the record's current user. The peer
// key comes from the record when it carries one and from dir otherwise.
//
// A record with a private key comes from a backend that hands both
// participants one shared pair; it is accepted, with a warning, and then
// wins over privateKey.
func Resolve(ctx context.Context, rec *models.ConversationRecord, self string, privateKey *rsa.PrivateKey, dir Directory) (models.Conversation, error) {
	const op = "keys.Resolve"
	if self == "" {
		self = rec.CurrentUserID
	}
	conv := models.Conversation{ChatID: rec.ChatID, Self: self, Peer: rec.Peer(self)}

	if rec.PrivateKey != "" {
		priv, err := crypto.ImportPrivateKeyPEM([]byte(rec.PrivateKey))
		if err != nil {
			return conv, errs.E(errs.Crypto, op, err)
		}
		logrus.WithFields(logrus.Fields{
			"component": "keys",
			"chat_id":   rec.ChatID,
		}).Warn("conversation uses a shared key pair handed out by the server")
		conv.Keys = models.KeyRing{Private: priv, SelfPublic: &priv.PublicKey, PeerPublic: &priv.PublicKey}
		return conv, nil
	}

	if privateKey == nil {
		return conv, errs.E(errs.Crypto, op, crypto.ErrInvalidKey)
	}
	conv.Keys = models.KeyRing{Private: privateKey, SelfPublic: &privateKey.PublicKey}

	switch {
	case rec.PeerPublicKey != "":
		pub, err := crypto.ImportPublicKeyPEM([]byte(rec.PeerPublicKey))
		if err != nil {
			return conv, errs.E(errs.Crypto, op, err)
		}
		conv.Keys.PeerPublic = pub
	case dir != nil:
		pub, err := dir.PublicKey(ctx, conv.Peer)
		if err != nil {
			return conv, errs.E(errs.Collaborator, op, err)
		}
		conv.Keys.PeerPublic = pub
	default:
		return conv, errs.E(errs.Crypto, op, ErrKeyNotFound)
	}
	return conv, nil
}
