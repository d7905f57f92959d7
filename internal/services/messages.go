package services

import (
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"

	"github.com/tbourn/go-anon-ads-backend/internal/domain"
)

// Message keys. The English text doubles as the key.
const (
	MsgAdsLimitFree     = "FREE allows %d ad per day. Upgrade to PRO to post up to %d."
	MsgAdsLimitPro      = "You have posted the maximum of %d ads today."
	MsgPhotosLimitFree  = "FREE allows %d photos per day. PRO has no photo limit."
	MsgPhotosLimitPro   = "You have sent the maximum of %d photos today."
	MsgPinCooldownFree  = "FREE allows one pin every %d hours. Upgrade to PRO for %d pins per day."
	MsgPinsLimitPro     = "You have used all %d pins today."
	MsgAuthRequired     = "Authorization required"
	MsgAdNotFound       = "Ad not found"
	MsgNotOwnerDelete   = "You can only delete your own ads"
	MsgNotOwnerUpdate   = "You can only update your own ads"
	MsgRequiredFields   = "Fill in all required fields"
	MsgTrialUsed        = "Trial has already been used"
	MsgInternal         = "Something went wrong, please try again"
	MsgFeatureAdsPerDay = "%d ads per day"
	MsgFeaturePhotos    = "%d photos per day"
	MsgFeatureUnlimited = "Unlimited photos"
	MsgFeaturePinFree   = "Pin to TOP: %d h once every %d days"
	MsgFeaturePinPro    = "Pin to TOP: %d times a day for %d h"
	MsgFeatureBasic     = "Basic features"
	MsgFeatureBadge     = "PRO badge in requests"
	MsgFeatureSupport   = "Priority support"
	MsgPeriodMonth      = "month"
)

var translations = map[language.Tag]map[string]string{
	language.Russian: {
		MsgAdsLimitFree:     "На FREE можно публиковать %d объявление в день. Оформите PRO, чтобы публиковать до %d.",
		MsgAdsLimitPro:      "Вы уже опубликовали максимум объявлений за сегодня (%d).",
		MsgPhotosLimitFree:  "На FREE можно отправлять %d фото в день. В PRO фото без ограничений.",
		MsgPhotosLimitPro:   "Вы отправили максимум фото за сегодня (%d).",
		MsgPinCooldownFree:  "На FREE закрепление доступно раз в %d часа. В PRO %d закрепления в день.",
		MsgPinsLimitPro:     "Вы использовали все закрепления за сегодня (%d).",
		MsgAuthRequired:     "Требуется авторизация",
		MsgAdNotFound:       "Объявление не найдено",
		MsgNotOwnerDelete:   "Вы можете удалять только свои объявления",
		MsgNotOwnerUpdate:   "Вы можете обновлять только свои объявления",
		MsgRequiredFields:   "Заполните все обязательные поля",
		MsgTrialUsed:        "Триал уже был использован",
		MsgInternal:         "Что-то пошло не так, попробуйте ещё раз",
		MsgFeatureAdsPerDay: "%d объявл. в день",
		MsgFeaturePhotos:    "%d фото в день",
		MsgFeatureUnlimited: "Безлимит фото",
		MsgFeaturePinFree:   "Закрепление в TOP: %d ч раз в %d дня",
		MsgFeaturePinPro:    "Закрепление в TOP: %d раза в день по %d ч",
		MsgFeatureBasic:     "Базовые функции",
		MsgFeatureBadge:     "Значок PRO в запросах",
		MsgFeatureSupport:   "Приоритетная поддержка",
		MsgPeriodMonth:      "месяц",
	},
	language.Kazakh: {
		MsgAdsLimitFree:    "FREE тарифында күніне %d хабарландыру. PRO арқылы %d дейін.",
		MsgAdsLimitPro:     "Бүгінгі хабарландыру шегіне жеттіңіз (%d).",
		MsgPhotosLimitFree: "FREE тарифында күніне %d фото. PRO-да шектеу жоқ.",
		MsgPhotosLimitPro:  "Бүгінгі фото шегіне жеттіңіз (%d).",
		MsgPinCooldownFree: "FREE тарифында бекіту %d сағатта бір рет. PRO-да күніне %d рет.",
		MsgPinsLimitPro:    "Бүгінгі бекітулердің бәрін пайдаландыңыз (%d).",
		MsgAuthRequired:    "Авторизация қажет",
		MsgAdNotFound:      "Хабарландыру табылмады",
		MsgNotOwnerDelete:  "Тек өз хабарландыруларыңызды жоя аласыз",
		MsgNotOwnerUpdate:  "Тек өз хабарландыруларыңызды өзгерте аласыз",
		MsgRequiredFields:  "Барлық міндетті өрістерді толтырыңыз",
		MsgTrialUsed:       "Сынақ кезеңі пайдаланылған",
		MsgInternal:        "Қате орын алды, қайталап көріңіз",
		MsgPeriodMonth:     "ай",
	},
}

// Localizer renders user-facing messages in ru, en or kk. The kk catalog
// only covers the error texts.
type Localizer struct {
	cat       *catalog.Builder
	matcher   language.Matcher
	supported []language.Tag
}

// NewLocalizer builds the message catalog. defaultLocale ("ru", "en", "kk")
// is what requests without a usable Accept-Language get.
func NewLocalizer(defaultLocale string) *Localizer {
	def := language.Make(defaultLocale)
	supported := []language.Tag{def}
	for _, t := range []language.Tag{language.Russian, language.English, language.Kazakh} {
		if t != def {
			supported = append(supported, t)
		}
	}

	b := catalog.NewBuilder(catalog.Fallback(def))
	for tag, msgs := range translations {
		for key, text := range msgs {
			_ = b.SetString(tag, key, text)
		}
	}
	// English entries are the keys themselves.
	for key := range translations[language.Russian] {
		_ = b.SetString(language.English, key, key)
	}

	return &Localizer{cat: b, matcher: language.NewMatcher(supported), supported: supported}
}

// Match picks the best supported locale for an Accept-Language header value.
func (l *Localizer) Match(acceptLanguage string) language.Tag {
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return l.supported[0]
	}
	_, idx, conf := l.matcher.Match(tags...)
	if conf == language.No {
		return l.supported[0]
	}
	return l.supported[idx]
}

// Sprintf formats key in tag.
func (l *Localizer) Sprintf(tag language.Tag, key string, args ...any) string {
	return message.NewPrinter(tag, message.Catalog(l.cat)).Sprintf(key, args...)
}

// QuotaMessage renders the upsell text for a quota rejection, distinguishing
// the FREE and PRO tiers.
func (l *Localizer) QuotaMessage(tag language.Tag, e *QuotaError, q LimitPolicy) string {
	switch e.Counter {
	case domain.CounterAds:
		if e.IsPremium {
			return l.Sprintf(tag, MsgAdsLimitPro, e.Limit)
		}
		return l.Sprintf(tag, MsgAdsLimitFree, e.Limit, q.Quota.Pro.AdsPerDay)
	case domain.CounterPhotos:
		if e.IsPremium {
			return l.Sprintf(tag, MsgPhotosLimitPro, e.Limit)
		}
		return l.Sprintf(tag, MsgPhotosLimitFree, e.Limit)
	default:
		if e.IsPremium {
			return l.Sprintf(tag, MsgPinsLimitPro, e.Limit)
		}
		return l.Sprintf(tag, MsgPinCooldownFree, int(q.Quota.FreePinCooldown/time.Hour), q.Quota.Pro.PinsPerDay)
	}
}
