package i18n

import "strings"

var translations = map[string]string{
	"invalid username or password":      "نام کاربری یا رمز عبور اشتباه است",
	"session expired, please log in":    "نشست شما منقضی شده است، دوباره وارد شوید",
	"not logged in":                     "وارد نشده اید",
	"server unreachable":                "سرور در دسترس نیست",
	"group not found":                   "گروه یافت نشد",
	"message not found":                 "پیام یافت نشد",
	"group name is required":            "نام گروه الزامی است",
	"message text is required":          "متن پیام الزامی است",
	"user not found":                    "کاربر یافت نشد",
	"failed to fetch groups":            "خطا در دریافت گفتگوها",
	"failed to fetch messages":          "خطا در دریافت پیام ها",
	"failed to send message":            "خطا در ارسال پیام",
	"failed to delete message":          "خطا در حذف پیام",
	"failed to leave group":             "خطا در خروج از گروه",
	"failed to delete chat":             "خطا در حذف گفتگو",
	"failed to block user":              "خطا در مسدودسازی کاربر",
	"failed to unblock user":            "خطا در رفع مسدودی کاربر",
	"failed to update profile":          "خطا در به روزرسانی پروفایل",
	"failed to load assistant settings": "خطا در دریافت تنظیمات دستیار",
	"failed to save assistant settings": "خطا در ذخیره تنظیمات دستیار",
	"assistant test failed":             "آزمایش دستیار ناموفق بود",
	"connection closed":                 "اتصال قطع شد",
	"reconnecting":                      "در حال اتصال مجدد",
	"logged out":                        "خارج شدید",
}

var prefixTranslations = map[string]string{
	"failed to open session store:": "خطا در باز کردن نشست محلی",
	"failed to save session:":       "خطا در ذخیره نشست",
	"failed to refresh token:":      "خطا در تازه سازی توکن",
	"failed to connect:":            "خطا در برقراری اتصال",
	"unknown command:":              "دستور ناشناخته",
}

func Translate(message string) string {
	if translated, ok := translations[message]; ok {
		return translated
	}
	for prefix, translated := range prefixTranslations {
		if strings.HasPrefix(message, prefix) {
			return translated
		}
	}
	return message
}
